package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileUserStore is a single-process user directory persisted as a JSON
// document. It is meant for local development without a database.
type FileUserStore struct {
	path string

	mu    sync.RWMutex
	state fileState
}

type fileState struct {
	Users []User `json:"users"`
	Files int64  `json:"files"`
}

func NewFileUserStore(path string) (*FileUserStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("user state file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir user store dir: %w", err)
	}
	s := &FileUserStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileUserStore) Exists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.findLocked(func(u User) bool { return u.Email == email })
	return ok, nil
}

func (s *FileUserStore) GetByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.findLocked(func(u User) bool { return u.Email == email })
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *FileUserStore) GetByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.findLocked(func(u User) bool { return u.ID == id })
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *FileUserStore) Create(_ context.Context, email, passwordHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findLocked(func(u User) bool { return u.Email == email }); ok {
		return User{}, ErrUserExists
	}
	u := User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash}
	s.state.Users = append(s.state.Users, u)
	if err := s.persistLocked(); err != nil {
		s.state.Users = s.state.Users[:len(s.state.Users)-1]
		return User{}, err
	}
	return u, nil
}

func (s *FileUserStore) CountUsers(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.state.Users)), nil
}

func (s *FileUserStore) CountFiles(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Files, nil
}

func (s *FileUserStore) Ping(context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileUserStore) findLocked(match func(User) bool) (User, bool) {
	for _, u := range s.state.Users {
		if match(u) {
			return u, true
		}
	}
	return User{}, false
}

func (s *FileUserStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read user store file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	var decoded fileState
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode user store file: %w", err)
	}
	seen := make(map[string]struct{}, len(decoded.Users))
	for _, u := range decoded.Users {
		if strings.TrimSpace(u.Email) == "" || u.ID == "" {
			continue
		}
		if _, dup := seen[u.Email]; dup {
			continue
		}
		seen[u.Email] = struct{}{}
		s.state.Users = append(s.state.Users, u)
	}
	s.state.Files = decoded.Files
	return nil
}

func (s *FileUserStore) persistLocked() error {
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir user store dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write user store file: %w", err)
	}
	return nil
}
