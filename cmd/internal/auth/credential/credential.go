package credential

import (
	"fmt"
	"time"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) valid() bool { return k == KindAccess || k == KindRefresh }

// Payload is the identity snapshot embedded in both tokens of a pair.
type Payload struct {
	IdentityID string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
}

// Pair is the result of one Mint.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Verified is a token that passed Verify. Its fields are unexported so that
// only this package can vouch for a payload.
type Verified struct {
	payload   Payload
	kind      Kind
	token     string
	id        string
	expiresAt time.Time
}

func (v Verified) Payload() Payload     { return v.payload }
func (v Verified) Kind() Kind           { return v.kind }
func (v Verified) Token() string        { return v.token }
func (v Verified) ID() string           { return v.id }
func (v Verified) ExpiresAt() time.Time { return v.expiresAt }
func (v Verified) IsZero() bool         { return v.token == "" }

// Encoder mints and verifies token pairs.
type Encoder interface {
	// Mint signs a fresh access/refresh pair for p as of now. It fails only
	// with ErrEncoding.
	Mint(p Payload, now time.Time) (Pair, error)

	// Verify checks signature, issuer, kind and validity window of token
	// as of now. It returns ErrMalformedToken, ErrInvalidToken or
	// ErrExpiredToken.
	Verify(token string, kind Kind, now time.Time) (Verified, error)
}

// New returns the Encoder selected by cfg.Format.
func New(cfg Config) (Encoder, error) {
	switch cfg.Format {
	case FormatJWT, "":
		return NewJWT(cfg), nil
	case FormatPaseto:
		return NewPaseto(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown token format %q", ErrConfig, cfg.Format)
	}
}
