package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	// PutToken stores t and drops the user's earlier tokens of the same kind.
	PutToken(ctx context.Context, t Token) error
	// ConsumeVerification deletes the token and marks its user verified in one transaction.
	// An expired token is deleted as well and reported as ErrInvalidToken.
	ConsumeVerification(ctx context.Context, token string, now time.Time) (User, error)
	// ConsumePasswordReset deletes the token and every session of its user in one transaction.
	ConsumePasswordReset(ctx context.Context, token string, now time.Time) (userID string, revoked int, err error)

	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
}

type PgStore struct{ DB *pgxpool.Pool }

const userColumns = `id, email, email_verified, verified_at, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.EmailVerified, &u.VerifiedAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (s *PgStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO users(id, email, email_verified, created_at) VALUES ($1, $2, false, $3)`,
		u.ID, u.Email, u.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PgStore) GetUser(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrUserNotFound
	}
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *PgStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func tokenTable(k TokenKind) (string, error) {
	switch k {
	case KindVerification:
		return "verification_tokens", nil
	case KindPasswordReset:
		return "password_reset_tokens", nil
	}
	return "", fmt.Errorf("unknown token kind %q", k)
}

func (s *PgStore) PutToken(ctx context.Context, t Token) error {
	table, err := tokenTable(t.Kind)
	if err != nil {
		return err
	}
	return postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE user_id=$1`, t.UserID); err != nil {
			return fmt.Errorf("drop old tokens: %w", err)
		}
		_, err := tx.Exec(ctx, `INSERT INTO `+table+`(token, user_id, expires_at) VALUES ($1, $2, $3)`,
			t.Value, t.UserID, t.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		return nil
	})
}

// takeToken deletes the token row and returns its owner. Concurrent callers race on the
// DELETE, so at most one of them sees the row.
func takeToken(ctx context.Context, tx pgx.Tx, table, token string, now time.Time) (string, bool, error) {
	var userID string
	var expiresAt time.Time
	err := tx.QueryRow(ctx, `DELETE FROM `+table+` WHERE token=$1 RETURNING user_id, expires_at`, token).
		Scan(&userID, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, ErrInvalidToken
	}
	if err != nil {
		return "", false, fmt.Errorf("consume token: %w", err)
	}
	return userID, now.Before(expiresAt), nil
}

func (s *PgStore) ConsumeVerification(ctx context.Context, token string, now time.Time) (User, error) {
	var u User
	expired := false
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		userID, live, err := takeToken(ctx, tx, "verification_tokens", token, now)
		if err != nil {
			return err
		}
		if !live {
			expired = true
			return nil
		}
		u, err = scanUser(tx.QueryRow(ctx, `
			UPDATE users SET email_verified=true, verified_at=$2
			WHERE id=$1
			RETURNING `+userColumns, userID, now))
		return err
	})
	if err != nil {
		return User{}, err
	}
	if expired {
		return User{}, ErrInvalidToken
	}
	return u, nil
}

func (s *PgStore) ConsumePasswordReset(ctx context.Context, token string, now time.Time) (string, int, error) {
	var userID string
	var revoked int
	expired := false
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		id, live, err := takeToken(ctx, tx, "password_reset_tokens", token, now)
		if err != nil {
			return err
		}
		if !live {
			expired = true
			return nil
		}
		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id=$1`, id)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		userID, revoked = id, int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	if expired {
		return "", 0, ErrInvalidToken
	}
	return userID, revoked, nil
}

func (s *PgStore) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO sessions(id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.UserID, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PgStore) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.DB.QueryRow(ctx, `SELECT id, user_id, expires_at, created_at FROM sessions WHERE id=$1`, id).
		Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

func (s *PgStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
