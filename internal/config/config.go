package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DBDriverMongo    = "mongo"
	DBDriverPostgres = "postgres"
	DBDriverFile     = "file"

	CacheDriverRedis    = "redis"
	CacheDriverPostgres = "postgres"
	CacheDriverMemory   = "memory"
)

type Config struct {
	HTTP         HTTPConfig
	Log          LogConfig
	DB           DBConfig
	Cache        CacheConfig
	Auth         AuthConfig
	AuditLogFile string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type DBConfig struct {
	Driver        string
	Host          string
	Port          int
	Database      string
	MongoURI      string
	URL           string
	UserStateFile string
}

type CacheConfig struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type AuthConfig struct {
	SessionTTL     time.Duration
	PasswordHasher string
	LegacySHA1     bool
}

// Load resolves every setting from the environment first, then from the
// YAML file named by CONFIG_FILE, then from built-in defaults.
func Load() (Config, error) {
	k := koanf.New(".")
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	src := source{k: k}

	dbHost := src.getString("db.host", "localhost", "DB_HOST")
	dbPort := src.getInt("db.port", 27017, "DB_PORT")

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            listenAddr(src.getString("http.addr", ":5000", "HTTP_ADDR", "PORT")),
			ReadTimeout:     time.Duration(src.getInt("http.read_timeout_sec", 10, "HTTP_READ_TIMEOUT_SEC")) * time.Second,
			WriteTimeout:    time.Duration(src.getInt("http.write_timeout_sec", 15, "HTTP_WRITE_TIMEOUT_SEC")) * time.Second,
			ShutdownTimeout: time.Duration(src.getInt("http.shutdown_timeout_sec", 20, "HTTP_SHUTDOWN_TIMEOUT_SEC")) * time.Second,
		},
		Log: LogConfig{
			Level:  src.getString("log.level", "info", "LOG_LEVEL"),
			Format: src.getString("log.format", "json", "LOG_FORMAT"),
		},
		DB: DBConfig{
			Driver:        strings.ToLower(src.getString("db.driver", DBDriverMongo, "DB_DRIVER")),
			Host:          dbHost,
			Port:          dbPort,
			Database:      src.getString("db.database", "files_manager", "DB_DATABASE"),
			MongoURI:      src.getString("db.mongo_uri", fmt.Sprintf("mongodb://%s:%d", dbHost, dbPort), "MONGO_URI"),
			URL:           src.getString("db.url", "", "DATABASE_URL"),
			UserStateFile: src.getString("db.user_state_file", "./data/users.json", "DB_USER_STATE_FILE"),
		},
		Cache: CacheConfig{
			Driver:        strings.ToLower(src.getString("cache.driver", CacheDriverRedis, "CACHE_DRIVER")),
			RedisAddr:     src.getString("cache.redis_addr", "localhost:6379", "REDIS_ADDR"),
			RedisPassword: src.getString("cache.redis_password", "", "REDIS_PASSWORD"),
			RedisDB:       src.getInt("cache.redis_db", 0, "REDIS_DB"),
		},
		Auth: AuthConfig{
			SessionTTL:     time.Duration(src.getInt("auth.session_ttl_sec", 86400, "AUTH_SESSION_TTL_SEC")) * time.Second,
			PasswordHasher: strings.ToLower(src.getString("auth.password_hasher", "argon2id", "AUTH_PASSWORD_HASHER")),
			LegacySHA1:     src.getBool("auth.legacy_sha1", true, "AUTH_LEGACY_SHA1"),
		},
		AuditLogFile: src.getString("audit.log_file", "./data/audit.log", "AUDIT_LOG_FILE"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT_SEC must be > 0")
	}
	switch c.DB.Driver {
	case DBDriverMongo:
		if c.DB.MongoURI == "" || c.DB.Database == "" {
			return fmt.Errorf("MONGO_URI and DB_DATABASE must not be empty")
		}
	case DBDriverPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case DBDriverFile:
		if c.DB.UserStateFile == "" {
			return fmt.Errorf("DB_USER_STATE_FILE must not be empty")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	switch c.Cache.Driver {
	case CacheDriverRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must not be empty")
		}
	case CacheDriverPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when CACHE_DRIVER=postgres")
		}
	case CacheDriverMemory:
	default:
		return fmt.Errorf("unsupported CACHE_DRIVER %q", c.Cache.Driver)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL_SEC must be > 0")
	}
	switch c.Auth.PasswordHasher {
	case "argon2id", "sha1":
	default:
		return fmt.Errorf("unsupported AUTH_PASSWORD_HASHER %q", c.Auth.PasswordHasher)
	}
	return nil
}

// source layers environment variables over the parsed config file.
type source struct {
	k *koanf.Koanf
}

func (s source) getString(path, fallback string, envKeys ...string) string {
	for _, key := range envKeys {
		if v := getEnv(key, ""); v != "" {
			return v
		}
	}
	if s.k.Exists(path) {
		if v := s.k.String(path); v != "" {
			return v
		}
	}
	return fallback
}

func (s source) getInt(path string, fallback int, envKeys ...string) int {
	for _, key := range envKeys {
		if v := getEnv(key, ""); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	if s.k.Exists(path) {
		return s.k.Int(path)
	}
	return fallback
}

func (s source) getBool(path string, fallback bool, envKeys ...string) bool {
	for _, key := range envKeys {
		if v := getEnv(key, ""); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	if s.k.Exists(path) {
		return s.k.Bool(path)
	}
	return fallback
}

// listenAddr accepts a bare port number as well as host:port.
func listenAddr(v string) string {
	if v != "" && !strings.Contains(v, ":") {
		return ":" + v
	}
	return v
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
