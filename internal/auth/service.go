package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMissingEmail    = errors.New("missing email")
	ErrMissingPassword = errors.New("missing password")
)

const DefaultSessionTTL = 24 * time.Hour

type Service struct {
	users    UserStore
	sessions SessionStore
	hasher   PasswordHasher
	ttl      time.Duration
	newToken func() (string, error)
}

type ServiceConfig struct {
	Hasher     PasswordHasher
	SessionTTL time.Duration
}

func NewService(userStore UserStore, sessionStore SessionStore, cfg ServiceConfig) (*Service, error) {
	if userStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if sessionStore == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.SessionTTL < 0 {
		return nil, fmt.Errorf("session TTL must be > 0")
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Hasher == nil {
		cfg.Hasher = SHA1Hasher{}
	}

	return &Service{
		users:    userStore,
		sessions: sessionStore,
		hasher:   cfg.Hasher,
		ttl:      cfg.SessionTTL,
		newToken: newSessionToken,
	}, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	return s.hasher.Hash(password)
}

// Register creates a user. The Exists pre-check only produces the friendly
// error early; the store still rejects a racing duplicate.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	if email == "" {
		return User{}, ErrMissingEmail
	}
	if password == "" {
		return User{}, ErrMissingPassword
	}

	exists, err := s.users.Exists(ctx, email)
	if err != nil {
		return User{}, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return User{}, ErrUserExists
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, email, digest)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate checks a Basic authorization header and opens a session.
// Every credential problem is reported as ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, authorization string) (string, error) {
	creds, ok := ParseBasicAuthorization(authorization)
	if !ok {
		return "", ErrUnauthorized
	}

	u, err := s.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	match, err := s.hasher.Verify(creds.Password, u.PasswordHash)
	if err != nil && !errors.Is(err, ErrUnrecognizedDigest) {
		return "", fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return "", ErrUnauthorized
	}

	token, err := s.newToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if err := s.sessions.Put(ctx, token, u.ID, s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *Service) WhoAmI(ctx context.Context, token string) (Identity, error) {
	u, err := s.resolve(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	return u.Identity(), nil
}

// EndSession deletes the session after confirming it still resolves to a
// real account.
func (s *Service) EndSession(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if _, err := s.resolve(ctx, token); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthorized
	}

	userID, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return User{}, ErrUnauthorized
		}
		return User{}, fmt.Errorf("lookup session: %w", err)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUnauthorized
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

func newSessionToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
