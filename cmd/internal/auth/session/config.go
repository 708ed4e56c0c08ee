package session

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the session subsystem settings that are not token settings.
type Config struct {
	// NotifyTimeout bounds one notification delivery.
	NotifyTimeout time.Duration `env:"SESSIOND_NOTIFY_TIMEOUT"`

	// PostgresSchema is the schema holding the sessions table.
	PostgresSchema string `env:"SESSIOND_DB_SCHEMA"`

	// RedisPrefix namespaces every Redis key.
	RedisPrefix string `env:"SESSIOND_REDIS_PREFIX"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		NotifyTimeout:  10 * time.Second,
		PostgresSchema: "sessiond",
		RedisPrefix:    "sessiond:",
	}
}

// LoadConfigFromEnv overlays environment variables on DefaultConfig.
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if cfg.NotifyTimeout <= 0 {
		return Config{}, fmt.Errorf("%w: notify timeout must be positive", ErrConfig)
	}
	if !pgIdentRe.MatchString(cfg.PostgresSchema) {
		return Config{}, fmt.Errorf("%w: invalid schema identifier %q", ErrConfig, cfg.PostgresSchema)
	}
	return cfg, nil
}
