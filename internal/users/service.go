package users

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	store Store
	pub   *events.Publisher
	ttl   TTLs
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Store, pub *events.Publisher, ttl TTLs, log *zap.Logger) *Service {
	return &Service{store: store, pub: pub, ttl: ttl, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) Register(ctx context.Context, email string) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	u := User{ID: uuid.NewString(), Email: email, CreatedAt: s.now()}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) issue(ctx context.Context, kind TokenKind, userID string, ttl time.Duration) (Token, error) {
	t := Token{Value: uuid.NewString(), UserID: userID, Kind: kind, ExpiresAt: s.now().Add(ttl)}
	if err := s.store.PutToken(ctx, t); err != nil {
		return Token{}, err
	}
	return t, nil
}

// IssueVerificationToken replaces any outstanding verification token for the user.
func (s *Service) IssueVerificationToken(ctx context.Context, userID string) (Token, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Token{}, err
	}
	if u.EmailVerified {
		return Token{}, ErrAlreadyVerified
	}
	return s.issue(ctx, KindVerification, u.ID, s.ttl.Verification)
}

// VerifyEmail consumes the token and announces EMAIL_VERIFIED. A token works once; a second
// attempt, or one after expiry, fails with ErrInvalidToken. A publish failure is returned
// next to the verified user.
func (s *Service) VerifyEmail(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}
	u, err := s.store.ConsumeVerification(ctx, token, s.now())
	if err != nil {
		return User{}, err
	}
	s.log.Info("email verified", zap.String("user_id", u.ID))
	err = s.pub.Publish(ctx, events.EmailVerified, events.EmailVerifiedData{UserID: u.ID, Email: u.Email})
	return u, err
}

func (s *Service) IssuePasswordResetToken(ctx context.Context, email string) (Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Token{}, err
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return Token{}, err
	}
	return s.issue(ctx, KindPasswordReset, u.ID, s.ttl.PasswordReset)
}

// ConsumePasswordResetToken spends the token and signs the user out everywhere. The caller
// sets the new password once this returns the user id.
func (s *Service) ConsumePasswordResetToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	userID, revoked, err := s.store.ConsumePasswordReset(ctx, token, s.now())
	if err != nil {
		return "", err
	}
	s.log.Info("password reset token consumed", zap.String("user_id", userID), zap.Int("sessions_revoked", revoked))
	return userID, nil
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return Session{}, err
	}
	now := s.now()
	sess := Session{ID: uuid.NewString(), UserID: userID, ExpiresAt: now.Add(s.ttl.Session), CreatedAt: now}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ValidateSession returns a live session. Expired sessions are deleted on sight.
func (s *Service) ValidateSession(ctx context.Context, id string) (Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !s.now().Before(sess.ExpiresAt) {
		if _, err := s.store.DeleteSession(ctx, id); err != nil {
			s.log.Warn("delete expired session", zap.String("session_id", id), zap.Error(err))
		}
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// DeleteSession signs the session out. Deleting an unknown session is not an error.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	_, err := s.store.DeleteSession(ctx, id)
	return err
}
