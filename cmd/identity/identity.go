package identity

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// Role is the coarse authorization role carried in tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Identity is an authenticated principal. Email is unique and compared
// exactly as stored.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Draft describes an identity to create. Password is plain text and is
// hashed by the Directory.
type Draft struct {
	Email    string
	Name     string
	Password string
	Role     Role
}

// Normalize trims surrounding whitespace and applies the default role.
// Email case is preserved.
func (d Draft) Normalize() Draft {
	d.Email = strings.TrimSpace(d.Email)
	d.Name = strings.TrimSpace(d.Name)
	if d.Role == "" {
		d.Role = RoleUser
	}
	return d
}

// Validate checks shape only; password strength is checked by Passwords.
func (d Draft) Validate() error {
	const op = "identity.Draft.Validate"

	if d.Email == "" {
		return invalid(op, "email is required")
	}
	addr, err := mail.ParseAddress(d.Email)
	if err != nil || addr.Address != d.Email {
		return invalid(op, "email is not a valid address")
	}
	if d.Name == "" {
		return invalid(op, "name is required")
	}
	if !d.Role.Valid() {
		return invalid(op, "unknown role")
	}
	if d.Password == "" {
		return invalid(op, "password is required")
	}
	return nil
}

// Directory is the identity persistence boundary used by the session core.
type Directory interface {
	// FindByEmail returns ErrNotFound when no identity has exactly this email.
	FindByEmail(ctx context.Context, email string) (Identity, error)

	// Create hashes the draft's password and stores a new identity. A
	// duplicate email returns ConflictError{Field: "email"}.
	Create(ctx context.Context, d Draft) (Identity, error)

	// VerifyPassword reports whether plain matches hash. A mismatch is
	// (false, nil).
	VerifyPassword(plain, hash string) (bool, error)
}
