package notify

import (
	"fmt"
	"net/mail"

	"github.com/caarlos0/env/v11"
)

// Backends.
const (
	BackendNone     = "none"
	BackendLog      = "log"
	BackendPostmark = "postmark"
)

// Config selects and configures the notification backend.
type Config struct {
	Backend string `env:"SESSIOND_NOTIFY_BACKEND"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SESSIOND_SENDER_EMAIL"`
	SupportEmail         string `env:"SESSIOND_SUPPORT_EMAIL"`

	// ProductName is rendered into message bodies.
	ProductName string `env:"SESSIOND_PRODUCT_NAME"`
}

// DefaultConfig logs messages instead of sending them.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendLog,
		ProductName: "sessiond",
	}
}

// LoadConfigFromEnv overlays environment variables on DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendNone, BackendLog:
		return nil
	case BackendPostmark:
		if c.PostmarkServerToken == "" || c.PostmarkAccountToken == "" {
			return fmt.Errorf("%w: postmark tokens are required", ErrInvalidConfig)
		}
		for name, addr := range map[string]string{"sender": c.SenderEmail, "support": c.SupportEmail} {
			if _, err := mail.ParseAddress(addr); err != nil {
				return fmt.Errorf("%w: %s email is invalid", ErrInvalidConfig, name)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
}
