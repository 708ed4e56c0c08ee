package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend names accepted by SESSIOND_SESSION_STORE and SESSIOND_IDENTITY_STORE.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Config contains the process-level runtime configuration. Package-owned
// settings (tokens, passwords, notifications, HTTP auth) are loaded by their
// packages.
type Config struct {
	HTTPAddr string `env:"SESSIOND_HTTP_ADDR"`
	LogLevel string `env:"SESSIOND_LOG_LEVEL"`
	// LogFormat is "json" or "text".
	LogFormat string `env:"SESSIOND_LOG_FORMAT"`

	ReadHeaderTimeout time.Duration `env:"SESSIOND_HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `env:"SESSIOND_HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `env:"SESSIOND_HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `env:"SESSIOND_HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `env:"SESSIOND_HTTP_SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes    int           `env:"SESSIOND_HTTP_MAX_HEADER_BYTES"`

	SessionStore  string `env:"SESSIOND_SESSION_STORE"`
	IdentityStore string `env:"SESSIOND_IDENTITY_STORE"`

	DatabaseURL string `env:"SESSIOND_DATABASE_URL"`
	DBMaxConns  int32  `env:"SESSIOND_DB_MAX_CONNS"`
	DBMinConns  int32  `env:"SESSIOND_DB_MIN_CONNS"`
	// DBMigrate applies the embedded schema at startup.
	DBMigrate bool `env:"SESSIOND_DB_MIGRATE"`

	RedisURL           string        `env:"SESSIOND_REDIS_URL"`
	MongoURL           string        `env:"SESSIOND_MONGO_URL"`
	MongoDatabase      string        `env:"SESSIOND_MONGO_DATABASE"`
	ConnectTimeout     time.Duration `env:"SESSIOND_CONNECT_TIMEOUT"`
	ConnectRetries     int           `env:"SESSIOND_CONNECT_RETRIES"`
	ConnectRetryPause  time.Duration `env:"SESSIOND_CONNECT_RETRY_INTERVAL"`
	ReadinessTimeout   time.Duration `env:"SESSIOND_READINESS_TIMEOUT"`
	PurgeInterval      time.Duration `env:"SESSIOND_PURGE_INTERVAL"`
	EventsEnabled      bool          `env:"SESSIOND_EVENTS_ENABLED"`
	MetricsEnabled     bool          `env:"SESSIOND_METRICS_ENABLED"`
	SecurityHeaders    bool          `env:"SESSIOND_SECURITY_HEADERS"`
	CORSAllowedOrigins []string      `env:"SESSIOND_CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCreds     bool          `env:"SESSIOND_CORS_ALLOW_CREDENTIALS"`
	CORSMaxAgeSeconds  int           `env:"SESSIOND_CORS_MAX_AGE_SECONDS"`

	// Security policy: when RequireTokenHMAC is set, TokenHMACKey must hold
	// at least token.MinHMACKeyBytes bytes and stored digests are keyed.
	TokenHMACKey     string `env:"SESSIOND_TOKEN_HMAC_KEY"`
	RequireTokenHMAC bool   `env:"SESSIOND_REQUIRE_TOKEN_HMAC"`
}

// DefaultConfig returns a single-process development setup backed by memory.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:          "0.0.0.0:8080",
		LogLevel:          "info",
		LogFormat:         "json",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		SessionStore:      BackendMemory,
		IdentityStore:     BackendMemory,
		DBMaxConns:        10,
		MongoDatabase:     "sessiond",
		ConnectTimeout:    10 * time.Second,
		ConnectRetries:    3,
		ConnectRetryPause: time.Second,
		ReadinessTimeout:  2 * time.Second,
		PurgeInterval:     10 * time.Minute,
		EventsEnabled:     true,
		MetricsEnabled:    true,
		SecurityHeaders:   true,
		CORSMaxAgeSeconds: 600,
	}
}

// LoadConfig overlays SESSIOND_* environment variables on DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	cfg.IdentityStore = strings.ToLower(strings.TrimSpace(cfg.IdentityStore))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%w: %s: %w", ErrConfig, p, err)
		}
	}
	return nil
}

// Validate checks backend selection and the connection settings it needs.
func (c Config) Validate() error {
	switch c.SessionStore {
	case BackendMemory, BackendPostgres, BackendRedis, BackendMongo:
	default:
		return fmt.Errorf("%w: unknown session store %q", ErrConfig, c.SessionStore)
	}
	switch c.IdentityStore {
	case BackendMemory, BackendPostgres, BackendMongo:
	default:
		return fmt.Errorf("%w: unknown identity store %q", ErrConfig, c.IdentityStore)
	}
	if c.needs(BackendPostgres) && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%w: SESSIOND_DATABASE_URL is required for postgres", ErrConfig)
	}
	if c.needs(BackendRedis) && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("%w: SESSIOND_REDIS_URL is required for redis", ErrConfig)
	}
	if c.needs(BackendMongo) && (strings.TrimSpace(c.MongoURL) == "" || c.MongoDatabase == "") {
		return fmt.Errorf("%w: SESSIOND_MONGO_URL and SESSIOND_MONGO_DATABASE are required for mongo", ErrConfig)
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("%w: db pool bounds out of range", ErrConfig)
	}
	if c.ConnectRetries < 1 || c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect retries and timeout must be positive", ErrConfig)
	}
	if c.PurgeInterval < 0 {
		return fmt.Errorf("%w: purge interval must not be negative", ErrConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrConfig, c.LogFormat)
	}
	return nil
}

// needs reports whether either store uses backend.
func (c Config) needs(backend string) bool {
	return c.SessionStore == backend || c.IdentityStore == backend
}
