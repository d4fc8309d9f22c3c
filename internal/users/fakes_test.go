package users

import (
	"context"
	"sync"
	"time"
)

type memStore struct {
	mu       sync.Mutex
	users    map[string]User
	tokens   map[string]Token
	sessions map[string]Session
}

func newMemStore() *memStore {
	return &memStore{users: map[string]User{}, tokens: map[string]Token{}, sessions: map[string]Session{}}
}

func (m *memStore) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.Email == u.Email {
			return ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memStore) PutToken(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for v, old := range m.tokens {
		if old.UserID == t.UserID && old.Kind == t.Kind {
			delete(m.tokens, v)
		}
	}
	m.tokens[t.Value] = t
	return nil
}

func (m *memStore) take(kind TokenKind, token string, now time.Time) (string, error) {
	t, ok := m.tokens[token]
	if !ok || t.Kind != kind {
		return "", ErrInvalidToken
	}
	delete(m.tokens, token)
	if !now.Before(t.ExpiresAt) {
		return "", ErrInvalidToken
	}
	return t.UserID, nil
}

func (m *memStore) ConsumeVerification(_ context.Context, token string, now time.Time) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.take(KindVerification, token, now)
	if err != nil {
		return User{}, err
	}
	u := m.users[id]
	u.EmailVerified = true
	u.VerifiedAt = &now
	m.users[id] = u
	return u, nil
}

func (m *memStore) ConsumePasswordReset(_ context.Context, token string, now time.Time) (string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.take(KindPasswordReset, token, now)
	if err != nil {
		return "", 0, err
	}
	revoked := 0
	for sid, s := range m.sessions {
		if s.UserID == id {
			delete(m.sessions, sid)
			revoked++
		}
	}
	return id, revoked, nil
}

func (m *memStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *memStore) DeleteSession(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}
