package app

import (
	"errors"
	"strings"
	"testing"

	"sessiond/cmd/security/token"
)

func TestNewTokenHasher(t *testing.T) {
	t.Parallel()

	longKey := strings.Repeat("k", token.MinHMACKeyBytes)

	cases := []struct {
		name     string
		cfg      Config
		wantHMAC bool
		wantErr  bool
	}{
		{name: "no key no policy", cfg: Config{}, wantHMAC: false},
		{name: "key without policy", cfg: Config{TokenHMACKey: "short"}, wantHMAC: true},
		{name: "policy with key", cfg: Config{RequireTokenHMAC: true, TokenHMACKey: longKey}, wantHMAC: true},
		{name: "policy missing key", cfg: Config{RequireTokenHMAC: true}, wantErr: true},
		{name: "policy short key", cfg: Config{RequireTokenHMAC: true, TokenHMACKey: "short"}, wantErr: true},
		{name: "policy blank key", cfg: Config{RequireTokenHMAC: true, TokenHMACKey: "   "}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h, err := NewTokenHasher(tc.cfg)
			if tc.wantErr {
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("expected ErrConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if h.HMACEnabled() != tc.wantHMAC {
				t.Fatalf("HMACEnabled=%v want %v", h.HMACEnabled(), tc.wantHMAC)
			}
		})
	}
}
