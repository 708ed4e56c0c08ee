package identity

import (
	"context"
	"sync"
	"time"

	"sessiond/cmd/identity/ids"
)

// MemoryDirectory keeps identities in process memory. Intended for tests and
// single-node development.
type MemoryDirectory struct {
	pw  Passwords
	now func() time.Time

	mu      sync.RWMutex
	byEmail map[string]Identity
}

var _ Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory returns an empty directory hashing with pw.
func NewMemoryDirectory(pw Passwords) *MemoryDirectory {
	return &MemoryDirectory{
		pw:      pw,
		now:     func() time.Time { return time.Now().UTC() },
		byEmail: make(map[string]Identity),
	}
}

func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return Identity{}, NotFoundError{Op: "identity.FindByEmail", Resource: "identity"}
	}
	return id, nil
}

func (d *MemoryDirectory) Create(ctx context.Context, draft Draft) (Identity, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return Identity{}, err
	}

	// Hash outside the lock; argon2 is slow on purpose.
	hash, err := d.pw.Hash(draft.Password)
	if err != nil {
		return Identity{}, err
	}
	now := d.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Identity{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byEmail[draft.Email]; taken {
		return Identity{}, ConflictError{Op: op, Field: "email"}
	}
	out := Identity{
		ID:           id,
		Email:        draft.Email,
		Name:         draft.Name,
		Role:         draft.Role,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	d.byEmail[out.Email] = out
	return out, nil
}

func (d *MemoryDirectory) VerifyPassword(plain, hash string) (bool, error) {
	return d.pw.Verify(plain, hash)
}

// Len returns the number of stored identities.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byEmail)
}
