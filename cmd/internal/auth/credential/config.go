package credential

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported token formats.
const (
	FormatJWT    = "jwt"
	FormatPaseto = "paseto"
)

// MinSecretBytes is the minimum HMAC secret length for the JWT format.
const MinSecretBytes = 32

// Config controls token format, lifetimes and signing keys.
type Config struct {
	Format     string        `env:"SESSIOND_TOKEN_FORMAT"`
	Issuer     string        `env:"SESSIOND_TOKEN_ISSUER"`
	AccessTTL  time.Duration `env:"SESSIOND_ACCESS_TTL"`
	RefreshTTL time.Duration `env:"SESSIOND_REFRESH_TTL"`

	// ClockSkew is tolerated on both nbf and exp during verification.
	ClockSkew time.Duration `env:"SESSIOND_CLOCK_SKEW"`

	// HS256 secrets (jwt format).
	AccessSecret  string `env:"SESSIOND_ACCESS_SECRET"`
	RefreshSecret string `env:"SESSIOND_REFRESH_SECRET"`

	// Hex-encoded Ed25519 secret keys (paseto format).
	PasetoAccessKeyHex  string `env:"SESSIOND_PASETO_ACCESS_KEY_HEX"`
	PasetoRefreshKeyHex string `env:"SESSIOND_PASETO_REFRESH_KEY_HEX"`
}

// DefaultConfig returns lifetimes suitable for interactive clients. Keys are
// left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Format:     FormatJWT,
		Issuer:     "sessiond",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
	}
}

// LoadConfigFromEnv overlays SESSIOND_TOKEN_*, SESSIOND_*_TTL and key
// variables on DefaultConfig. Returns ErrConfig if the result is unusable.
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

// Validate checks lifetimes and that the keys required by Format are present.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("%w: issuer is empty", ErrConfig)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ClockSkew < 0 {
		return fmt.Errorf("%w: lifetimes must be positive", ErrConfig)
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("%w: refresh ttl (%s) must exceed access ttl (%s)", ErrConfig, c.RefreshTTL, c.AccessTTL)
	}

	switch c.Format {
	case FormatJWT:
		if len(c.AccessSecret) < MinSecretBytes || len(c.RefreshSecret) < MinSecretBytes {
			return fmt.Errorf("%w: jwt secrets must be at least %d bytes", ErrConfig, MinSecretBytes)
		}
		if c.AccessSecret == c.RefreshSecret {
			return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
		}
	case FormatPaseto:
		for name, k := range map[string]string{"access": c.PasetoAccessKeyHex, "refresh": c.PasetoRefreshKeyHex} {
			if _, err := hex.DecodeString(k); err != nil || k == "" {
				return fmt.Errorf("%w: paseto %s key must be hex", ErrConfig, name)
			}
		}
		if c.PasetoAccessKeyHex == c.PasetoRefreshKeyHex {
			return fmt.Errorf("%w: access and refresh keys must differ", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown token format %q", ErrConfig, c.Format)
	}
	return nil
}
