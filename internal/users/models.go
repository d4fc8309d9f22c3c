package users

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/apperr"
)

var (
	ErrUserNotFound    = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", apperr.ErrNotFound)
	ErrEmailTaken      = fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	ErrAlreadyVerified = fmt.Errorf("%w: email already verified", apperr.ErrConflict)
	ErrInvalidEmail    = fmt.Errorf("%w: email", apperr.ErrValidation)
	ErrInvalidToken    = fmt.Errorf("%w: token is invalid or expired", apperr.ErrValidation)
)

type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"emailVerified"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type TokenKind string

const (
	KindVerification  TokenKind = "verification"
	KindPasswordReset TokenKind = "password_reset"
)

// Token is a single-use credential. It is deleted in the same transaction that consumes it.
type Token struct {
	Value     string    `json:"token"`
	UserID    string    `json:"userId"`
	Kind      TokenKind `json:"kind"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TTLs bounds how long each credential stays usable.
type TTLs struct {
	Verification  time.Duration
	PasswordReset time.Duration
	Session       time.Duration
}

var DefaultTTLs = TTLs{
	Verification:  24 * time.Hour,
	PasswordReset: time.Hour,
	Session:       7 * 24 * time.Hour,
}
