package session

import (
	"errors"
	"fmt"
)

// Domain error kinds returned by Manager, always wrapped in *Error.
var (
	// ErrConflict is returned when sign-up hits an existing email.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when sign-in names an unknown email.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned for a wrong password.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRevokedToken is returned when a cryptographically valid token no
	// longer has a live record: rotated, logged out or replayed.
	ErrRevokedToken = errors.New("token revoked")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)

// Store error kinds.
var (
	ErrRecordNotFound = errors.New("session record not found")
	ErrRecordConflict = errors.New("session record conflict")
	ErrInvalidFilter  = errors.New("invalid session filter")
	ErrInvalidRecord  = errors.New("invalid session record")
)

// Error carries the failing operation alongside a stable Kind for
// errors.Is. Msg must not contain token material.
type Error struct {
	Op   string
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func opErr(op string, kind error, msg string) error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}
