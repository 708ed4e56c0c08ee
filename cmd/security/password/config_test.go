package password

import (
	"errors"
	"os"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"SESSIOND_PASSWORD_MIN_LEN",
		"SESSIOND_PASSWORD_MAX_LEN",
		"SESSIOND_PASSWORD_REJECT_VERY_WEAK",
		"SESSIOND_ARGON2_MEMORY_KIB",
		"SESSIOND_ARGON2_ITERATIONS",
		"SESSIOND_ARGON2_PARALLELISM",
		"SESSIOND_ARGON2_SALT_LEN",
		"SESSIOND_ARGON2_KEY_LEN",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	def := DefaultConfig()
	if cfg.Policy.MinLength != def.Policy.MinLength {
		t.Fatalf("min length mismatch: %d", cfg.Policy.MinLength)
	}
	if cfg.Params.MemoryKiB != def.Params.MemoryKiB {
		t.Fatalf("memory mismatch: %d", cfg.Params.MemoryKiB)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("SESSIOND_PASSWORD_MIN_LEN", "10")
	t.Setenv("SESSIOND_PASSWORD_MAX_LEN", "200")
	t.Setenv("SESSIOND_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("SESSIOND_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("SESSIOND_ARGON2_ITERATIONS", "4")
	t.Setenv("SESSIOND_ARGON2_PARALLELISM", "2")
	t.Setenv("SESSIOND_ARGON2_SALT_LEN", "24")
	t.Setenv("SESSIOND_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "min above max", env: map[string]string{"SESSIOND_PASSWORD_MIN_LEN": "20", "SESSIOND_PASSWORD_MAX_LEN": "10"}},
		{name: "tiny memory", env: map[string]string{"SESSIOND_ARGON2_MEMORY_KIB": "16"}},
		{name: "not a number", env: map[string]string{"SESSIOND_ARGON2_ITERATIONS": "many"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
