package users

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/postgres/pgtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgStore_Credentials(t *testing.T) {
	pool := pgtest.Start(t, Migrations, "migrations")
	store := &PgStore{DB: pool}
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	u := User{ID: uuid.NewString(), Email: "ada@example.com", CreatedAt: now}
	require.NoError(t, store.CreateUser(ctx, u))
	assert.ErrorIs(t, store.CreateUser(ctx, User{ID: uuid.NewString(), Email: u.Email, CreatedAt: now}), ErrEmailTaken)

	_, err := store.GetUser(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrUserNotFound)

	tok := Token{Value: uuid.NewString(), UserID: u.ID, Kind: KindVerification, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.PutToken(ctx, tok))
	got, err := store.ConsumeVerification(ctx, tok.Value, now)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
	_, err = store.ConsumeVerification(ctx, tok.Value, now)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := Token{Value: uuid.NewString(), UserID: u.ID, Kind: KindVerification, ExpiresAt: now.Add(-time.Minute)}
	require.NoError(t, store.PutToken(ctx, expired))
	_, err = store.ConsumeVerification(ctx, expired.Value, now)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = store.ConsumeVerification(ctx, expired.Value, now.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken, "expired token is gone after the first attempt")

	for i := 0; i < 2; i++ {
		require.NoError(t, store.CreateSession(ctx, Session{ID: uuid.NewString(), UserID: u.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}))
	}
	reset := Token{Value: uuid.NewString(), UserID: u.ID, Kind: KindPasswordReset, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.PutToken(ctx, reset))
	userID, revoked, err := store.ConsumePasswordReset(ctx, reset.Value, now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
	assert.Equal(t, 2, revoked)

	ok, err := store.DeleteSession(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
