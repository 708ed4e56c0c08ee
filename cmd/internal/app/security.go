package app

import (
	"errors"
	"fmt"

	"sessiond/cmd/security/token"
)

// NewTokenHasher builds the digest used for stored tokens and enforces the
// HMAC policy at startup.
func NewTokenHasher(cfg Config) (token.Hasher, error) {
	if !cfg.RequireTokenHMAC {
		return token.NewHasher(cfg.TokenHMACKey), nil
	}

	h, err := token.NewStrictHasher(cfg.TokenHMACKey, token.MinHMACKeyBytes)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, fmt.Errorf("%w: SESSIOND_REQUIRE_TOKEN_HMAC=true but SESSIOND_TOKEN_HMAC_KEY is missing", ErrConfig)
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("%w: SESSIOND_TOKEN_HMAC_KEY is shorter than %d bytes", ErrConfig, token.MinHMACKeyBytes)
	case err != nil:
		return token.Hasher{}, err
	}

	// Fail closed if a future change reintroduces a SHA-256 fallback.
	if !h.HMACEnabled() {
		return token.Hasher{}, fmt.Errorf("%w: token hasher is not in HMAC mode", ErrConfig)
	}
	return h, nil
}
