package identity

import (
	"errors"

	"sessiond/cmd/security/password"
)

// Passwords bridges the Directory to security/password so hashing
// parameters and policy have a single source of truth.
type Passwords struct {
	cfg password.Config
}

// NewPasswords wraps cfg.
func NewPasswords(cfg password.Config) Passwords { return Passwords{cfg: cfg} }

// Hash applies the password policy and returns a PHC Argon2id hash. Policy
// failures are reported as ErrInvalidInput.
func (p Passwords) Hash(plain string) (string, error) {
	const op = "identity.Passwords.Hash"

	enc, err := p.cfg.Hash(plain)
	switch {
	case err == nil:
		return enc, nil
	case errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, password.ErrPasswordTooLong),
		errors.Is(err, password.ErrWeakPassword):
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	default:
		return "", err
	}
}

// Verify reports whether plain matches hash. Malformed hashes surface as
// password.ErrInvalidHash.
func (p Passwords) Verify(plain, hash string) (bool, error) {
	return p.cfg.Verify(hash, plain)
}
