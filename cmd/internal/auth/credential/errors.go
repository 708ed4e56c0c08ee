package credential

import "errors"

var (
	// ErrEncoding is returned when a token cannot be signed, typically because
	// a signing key is missing or too short.
	ErrEncoding = errors.New("token encoding failed")

	// ErrInvalidToken is returned for signature mismatches, foreign issuers,
	// not-yet-valid tokens and tokens presented as the wrong kind.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when a token is past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrMalformedToken is returned when a token cannot be decoded at all.
	ErrMalformedToken = errors.New("malformed token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid credential config")
)
