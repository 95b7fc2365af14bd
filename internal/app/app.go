package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"filesmanager/files-manager/internal/audit"
	"filesmanager/files-manager/internal/auth"
	"filesmanager/files-manager/internal/config"
	"filesmanager/files-manager/internal/httpserver"
	"filesmanager/files-manager/internal/observability"
)

const (
	connectTimeout = 10 * time.Second
	purgeInterval  = 10 * time.Minute
)

// userBackend is a user directory that also answers /stats and /status.
type userBackend interface {
	auth.UserStore
	httpserver.StatsService
	httpserver.Pinger
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

type App struct {
	cfg     config.Config
	log     *slog.Logger
	server  *httpserver.Server
	purger  purger
	closers []func(context.Context) error
}

func New(cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	a := &App{cfg: cfg, log: logger}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var db *sql.DB
	if cfg.DB.Driver == config.DBDriverPostgres || cfg.Cache.Driver == config.CacheDriverPostgres {
		var err error
		db, err = openPostgres(ctx, cfg.DB.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	}

	users, err := a.openUserStore(ctx, db)
	if err != nil {
		a.close(context.Background())
		return nil, err
	}
	sessions, err := a.openSessionStore(db)
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.PasswordHasher, cfg.Auth.LegacySHA1)
	if err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("create password hasher: %w", err)
	}
	authService, err := auth.NewService(users, sessions, auth.ServiceConfig{
		Hasher:     hasher,
		SessionTTL: cfg.Auth.SessionTTL,
	})
	if err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	a.server = httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:    authService,
		Stats:   users,
		Cache:   sessions,
		DB:      users,
		Audit:   audit.NewLogger(cfg.AuditLogFile),
		Metrics: observability.NewMetrics(),
		Log:     logger,
	})

	logger.Info("stores ready",
		"db_driver", cfg.DB.Driver,
		"cache_driver", cfg.Cache.Driver,
		"password_hasher", cfg.Auth.PasswordHasher,
	)
	return a, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (a *App) openUserStore(ctx context.Context, db *sql.DB) (userBackend, error) {
	switch a.cfg.DB.Driver {
	case config.DBDriverPostgres:
		store, err := auth.NewPostgresUserStore(db)
		if err != nil {
			return nil, fmt.Errorf("create postgres user store: %w", err)
		}
		return store, nil
	case config.DBDriverFile:
		store, err := auth.NewFileUserStore(a.cfg.DB.UserStateFile)
		if err != nil {
			return nil, fmt.Errorf("create file user store: %w", err)
		}
		return store, nil
	default:
		client, err := mongo.Connect(options.Client().ApplyURI(a.cfg.DB.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)
		store, err := auth.NewMongoUserStore(ctx, client, a.cfg.DB.Database)
		if err != nil {
			return nil, fmt.Errorf("create mongo user store: %w", err)
		}
		return store, nil
	}
}

func (a *App) openSessionStore(db *sql.DB) (auth.SessionStore, error) {
	switch a.cfg.Cache.Driver {
	case config.CacheDriverPostgres:
		store, err := auth.NewPostgresSessionStore(db)
		if err != nil {
			return nil, fmt.Errorf("create postgres session store: %w", err)
		}
		a.purger = store
		return store, nil
	case config.CacheDriverMemory:
		return auth.NewInMemorySessionStore(), nil
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
		})
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		store, err := auth.NewRedisSessionStore(rdb)
		if err != nil {
			return nil, fmt.Errorf("create redis session store: %w", err)
		}
		return store, nil
	}
}

func (a *App) Run(ctx context.Context) error {
	defer a.close(context.Background())

	if a.purger != nil {
		go a.purgeExpiredSessions(ctx)
	}

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

// purgeExpiredSessions removes lapsed rows from the sessions table. Reads
// already ignore them, so this only bounds table growth.
func (a *App) purgeExpiredSessions(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.purger.Purge(ctx)
			if err != nil {
				a.log.Warn("purge expired sessions failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Debug("expired sessions purged", "count", n)
			}
		}
	}
}

// close releases clients in reverse order of acquisition.
func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("close store client failed", "error", err)
		}
	}
	a.closers = nil
}
