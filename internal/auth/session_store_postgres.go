package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresSessionStore keeps sessions in auth_sessions when no Redis is
// available. Expired rows are filtered on read and removed by Purge.
type PostgresSessionStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewPostgresSessionStore(db *sql.DB) (*PostgresSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresSessionStore{db: db, nowFunc: time.Now}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresSessionStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS auth_sessions (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ NOT NULL
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure auth_sessions schema: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Put(ctx context.Context, token, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session TTL must be > 0")
	}
	const q = `
INSERT INTO auth_sessions (token, user_id, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (token) DO UPDATE
SET user_id = EXCLUDED.user_id,
	expires_at = EXCLUDED.expires_at`
	if _, err := s.db.ExecContext(ctx, q, token, userID, s.nowFunc().Add(ttl).UTC()); err != nil {
		return fmt.Errorf("%w: upsert session: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresSessionStore) Get(ctx context.Context, token string) (string, error) {
	const q = `SELECT user_id FROM auth_sessions WHERE token = $1 AND expires_at > $2`
	var userID string
	if err := s.db.QueryRowContext(ctx, q, token, s.nowFunc().UTC()).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("%w: query session: %v", ErrStoreUnavailable, err)
	}
	return userID, nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Purge removes expired rows and reports how many were deleted.
func (s *PostgresSessionStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= $1`, s.nowFunc().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: purge sessions: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions rows affected: %w", err)
	}
	return n, nil
}

func (s *PostgresSessionStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
