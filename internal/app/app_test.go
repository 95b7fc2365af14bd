package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"filesmanager/files-manager/internal/config"
)

func fileBackedConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		HTTP: config.HTTPConfig{
			Addr:            "127.0.0.1:0",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		Log:   config.LogConfig{Level: "error", Format: "text"},
		DB:    config.DBConfig{Driver: config.DBDriverFile, UserStateFile: filepath.Join(dir, "users.json")},
		Cache: config.CacheConfig{Driver: config.CacheDriverMemory},
		Auth: config.AuthConfig{
			SessionTTL:     time.Hour,
			PasswordHasher: "argon2id",
			LegacySHA1:     true,
		},
		AuditLogFile: filepath.Join(dir, "audit.log"),
	}
}

func TestNewWithFileAndMemoryStores(t *testing.T) {
	a, err := New(fileBackedConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if a.purger != nil {
		t.Fatalf("memory sessions should not start a purger")
	}
	if len(a.closers) != 0 {
		t.Fatalf("expected no clients to close, got %d", len(a.closers))
	}
}

func TestNewRejectsUnknownHasher(t *testing.T) {
	cfg := fileBackedConfig(t)
	cfg.Auth.PasswordHasher = "md5"
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for unknown password hasher")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(fileBackedConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not return after cancel")
	}
}
