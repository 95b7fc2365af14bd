package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrSessionNotFound  = errors.New("session not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// UserStore is the user directory. Create must reject a duplicate email
// atomically with ErrUserExists.
type UserStore interface {
	Exists(ctx context.Context, email string) (bool, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, email, passwordHash string) (User, error)
}

// SessionStore maps session tokens to user ids with a per-entry TTL.
type SessionStore interface {
	Put(ctx context.Context, token, userID string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
	Ping(ctx context.Context) error
}

type InMemoryUserStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
	byID    map[string]User
	files   int64
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byEmail: make(map[string]User),
		byID:    make(map[string]User),
	}
}

func (s *InMemoryUserStore) Exists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *InMemoryUserStore) GetByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) GetByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) Create(_ context.Context, email, passwordHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return User{}, ErrUserExists
	}
	u := User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash}
	s.byEmail[email] = u
	s.byID[u.ID] = u
	return u, nil
}

func (s *InMemoryUserStore) CountUsers(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

func (s *InMemoryUserStore) CountFiles(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files, nil
}

// AddFiles bumps the file counter; the service itself never writes files.
func (s *InMemoryUserStore) AddFiles(n int64) {
	s.mu.Lock()
	s.files += n
	s.mu.Unlock()
}

func (s *InMemoryUserStore) Ping(context.Context) error { return nil }

type InMemorySessionStore struct {
	nowFunc func() time.Time

	mu       sync.Mutex
	sessions map[string]sessionEntry
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		nowFunc:  time.Now,
		sessions: make(map[string]sessionEntry),
	}
}

func (s *InMemorySessionStore) Put(_ context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = sessionEntry{UserID: userID, ExpiresAt: s.nowFunc().Add(ttl)}
	return nil
}

func (s *InMemorySessionStore) Get(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return "", ErrSessionNotFound
	}
	if !s.nowFunc().Before(e.ExpiresAt) {
		delete(s.sessions, token)
		return "", ErrSessionNotFound
	}
	return e.UserID, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *InMemorySessionStore) Ping(context.Context) error { return nil }
