package authapi

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls the HTTP auth surface.
type Config struct {
	TrustProxy   bool  `env:"SESSIOND_TRUST_PROXY"`
	MaxBodyBytes int64 `env:"SESSIOND_MAX_BODY_BYTES"`

	// Sign-up and sign-in attempts allowed per client IP.
	AuthRatePerMinute float64 `env:"SESSIOND_AUTH_RATE_PER_MINUTE"`
	AuthRateBurst     int     `env:"SESSIOND_AUTH_RATE_BURST"`

	// Events feed.
	WSOriginRequired bool          `env:"SESSIOND_WS_ORIGIN_REQUIRED"`
	WSAllowedOrigins []string      `env:"SESSIOND_WS_ALLOWED_ORIGINS" envSeparator:","`
	WSDevInsecure    bool          `env:"SESSIOND_WS_DEV_INSECURE"`
	WSWriteTimeout   time.Duration `env:"SESSIOND_WS_WRITE_TIMEOUT"`
	WSHeartbeat      time.Duration `env:"SESSIOND_WS_HEARTBEAT_INTERVAL"`
	WSSendQueue      int           `env:"SESSIOND_WS_SEND_QUEUE"`
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20,
		AuthRatePerMinute: 30,
		AuthRateBurst:     10,
		WSAllowedOrigins:  []string{"http://localhost", "http://127.0.0.1"},
		WSWriteTimeout:    5 * time.Second,
		WSHeartbeat:       30 * time.Second,
		WSSendQueue:       16,
	}
}

// LoadConfigFromEnv overlays environment variables on DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would disable a limit by accident.
func (c Config) Validate() error {
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max body bytes must be positive", ErrConfig)
	}
	if c.AuthRatePerMinute < 0 || c.AuthRateBurst < 0 {
		return fmt.Errorf("%w: auth rate must not be negative", ErrConfig)
	}
	if c.AuthRatePerMinute > 0 && c.AuthRateBurst == 0 {
		return fmt.Errorf("%w: auth rate burst must be positive when rate is set", ErrConfig)
	}
	if c.WSWriteTimeout <= 0 || c.WSHeartbeat <= 0 || c.WSSendQueue <= 0 {
		return fmt.Errorf("%w: websocket timeouts and queue must be positive", ErrConfig)
	}
	return nil
}
