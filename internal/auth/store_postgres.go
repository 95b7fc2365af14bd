package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PostgresUserStore keeps the users and files collections as tables. Email
// uniqueness is a table constraint.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresUserStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresUserStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS files (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES users(id),
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	is_public BOOLEAN NOT NULL DEFAULT FALSE,
	parent_id UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`
	if err := s.db.QueryRowContext(ctx, q, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: query user exists: %v", ErrStoreUnavailable, err)
	}
	return exists, nil
}

func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	if strings.TrimSpace(email) == "" {
		return User{}, ErrUserNotFound
	}
	const q = `SELECT id, email, password FROM users WHERE email = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, q, email))
}

func (s *PostgresUserStore) GetByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrUserNotFound
	}
	const q = `SELECT id, email, password FROM users WHERE id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresUserStore) scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("%w: query user: %v", ErrStoreUnavailable, err)
	}
	return u, nil
}

func (s *PostgresUserStore) Create(ctx context.Context, email, passwordHash string) (User, error) {
	if email == "" || passwordHash == "" {
		return User{}, fmt.Errorf("email and password hash are required")
	}

	const q = `
INSERT INTO users (email, password)
VALUES ($1, $2)
ON CONFLICT (email) DO NOTHING
RETURNING id`
	u := User{Email: email, PasswordHash: passwordHash}
	if err := s.db.QueryRowContext(ctx, q, email, passwordHash).Scan(&u.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("%w: insert user: %v", ErrStoreUnavailable, err)
	}
	return u, nil
}

func (s *PostgresUserStore) CountUsers(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (s *PostgresUserStore) CountFiles(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM files`)
}

func (s *PostgresUserStore) count(ctx context.Context, q string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *PostgresUserStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
