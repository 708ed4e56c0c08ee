package password

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"SESSIOND_ARGON2_MEMORY_KIB"`
	Iterations  uint32 `env:"SESSIOND_ARGON2_ITERATIONS"`
	Parallelism uint8  `env:"SESSIOND_ARGON2_PARALLELISM"`
	SaltLength  uint32 `env:"SESSIOND_ARGON2_SALT_LEN"`
	KeyLength   uint32 `env:"SESSIOND_ARGON2_KEY_LEN"`
}

// Policy bounds accepted plaintext passwords.
type Policy struct {
	MinLength      int  `env:"SESSIOND_PASSWORD_MIN_LEN"`
	MaxLength      int  `env:"SESSIOND_PASSWORD_MAX_LEN"`
	RejectVeryWeak bool `env:"SESSIOND_PASSWORD_REJECT_VERY_WEAK"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login defaults (64 MiB, 3 passes).
func DefaultConfig() Config {
	// Clamp to [1..4] so container CPU counts don't inflate memory use.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// FromEnv overlays SESSIOND_PASSWORD_* and SESSIOND_ARGON2_* variables on
// DefaultConfig and validates the result.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) check() error {
	p := c.Params
	switch {
	case p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024:
		return fmt.Errorf("%w: argon2 memory out of range [8192..1048576] KiB", ErrConfig)
	case p.Iterations < 1 || p.Iterations > 20:
		return fmt.Errorf("%w: argon2 iterations out of range [1..20]", ErrConfig)
	case p.Parallelism < 1 || p.Parallelism > 64:
		return fmt.Errorf("%w: argon2 parallelism out of range [1..64]", ErrConfig)
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("%w: argon2 salt length out of range [8..64]", ErrConfig)
	case p.KeyLength < 16 || p.KeyLength > 64:
		return fmt.Errorf("%w: argon2 key length out of range [16..64]", ErrConfig)
	}
	if c.Policy.MinLength < 1 || c.Policy.MaxLength > 4096 {
		return fmt.Errorf("%w: password length bounds out of range", ErrConfig)
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf("%w: min_len(%d) > max_len(%d)", ErrConfig, c.Policy.MinLength, c.Policy.MaxLength)
	}
	return nil
}
