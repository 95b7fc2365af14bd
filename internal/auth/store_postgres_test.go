package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockUserStore(t *testing.T) (*PostgresUserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewPostgresUserStore(db)
	if err != nil {
		t.Fatalf("NewPostgresUserStore() error: %v", err)
	}
	return store, mock
}

func TestNewPostgresUserStore(t *testing.T) {
	_, mock := newMockUserStore(t)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStoreGetByEmailNotFound(t *testing.T) {
	store, mock := newMockUserStore(t)

	mock.ExpectQuery("SELECT id, email, password FROM users WHERE email = \\$1").
		WithArgs("missing@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByEmail(context.Background(), "missing@x.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStoreGetByID(t *testing.T) {
	store, mock := newMockUserStore(t)
	const id = "6f1c2f7e-3b0a-4c43-9d6f-8d1b2a4c5e6f"

	mock.ExpectQuery("SELECT id, email, password FROM users WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password"}).AddRow(id, "a@x.com", "digest"))

	u, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if u.ID != id || u.Email != "a@x.com" || u.PasswordHash != "digest" {
		t.Fatalf("unexpected user: %+v", u)
	}

	// Malformed ids never reach the database.
	if _, err := store.GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStoreCreate(t *testing.T) {
	store, mock := newMockUserStore(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("a@x.com", "digest").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("6f1c2f7e-3b0a-4c43-9d6f-8d1b2a4c5e6f"))

	u, err := store.Create(context.Background(), "a@x.com", "digest")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if u.ID == "" || u.Email != "a@x.com" {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("a@x.com", "digest").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Create(context.Background(), "a@x.com", "digest"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStoreExistsAndCounts(t *testing.T) {
	store, mock := newMockUserStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM files").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	exists, err := store.Exists(ctx, "a@x.com")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v", exists, err)
	}
	users, err := store.CountUsers(ctx)
	if err != nil || users != 3 {
		t.Fatalf("CountUsers() = %d, %v", users, err)
	}
	files, err := store.CountFiles(ctx)
	if err != nil || files != 7 {
		t.Fatalf("CountFiles() = %d, %v", files, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStoreConnectionErrorIsUnavailable(t *testing.T) {
	store, mock := newMockUserStore(t)

	mock.ExpectQuery("SELECT id, email, password FROM users WHERE email = \\$1").
		WithArgs("a@x.com").
		WillReturnError(errors.New("connection refused"))

	_, err := store.GetByEmail(context.Background(), "a@x.com")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
