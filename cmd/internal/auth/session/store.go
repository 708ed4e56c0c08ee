package session

import (
	"context"
	"time"
)

// Device describes the client that owns a session.
type Device struct {
	UserAgent string
	IP        string
}

// Record is one live session: a single access/refresh pair stored as
// digests. ExpiresAt is the refresh token's expiry.
type Record struct {
	ID               string
	IdentityID       string
	AccessTokenHash  string
	RefreshTokenHash string
	UserAgent        string
	IP               string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

type filterKey int

const (
	keyNone filterKey = iota
	keyID
	keyAccess
	keyRefresh
	keyIdentity
)

// Filter selects records by exactly one key. Build it with ByID,
// ByAccessHash, ByRefreshHash or ByIdentity.
type Filter struct {
	key   filterKey
	value string
}

func ByID(id string) Filter               { return Filter{key: keyID, value: id} }
func ByAccessHash(h string) Filter        { return Filter{key: keyAccess, value: h} }
func ByRefreshHash(h string) Filter       { return Filter{key: keyRefresh, value: h} }
func ByIdentity(identityID string) Filter { return Filter{key: keyIdentity, value: identityID} }

func (f Filter) valid() bool { return f.key != keyNone && f.value != "" }

func (f Filter) String() string {
	switch f.key {
	case keyID:
		return "id"
	case keyAccess:
		return "access_token_hash"
	case keyRefresh:
		return "refresh_token_hash"
	case keyIdentity:
		return "identity_id"
	default:
		return "none"
	}
}

// matches reports whether r is selected by f.
func (f Filter) matches(r Record) bool {
	switch f.key {
	case keyID:
		return r.ID == f.value
	case keyAccess:
		return r.AccessTokenHash == f.value
	case keyRefresh:
		return r.RefreshTokenHash == f.value
	case keyIdentity:
		return r.IdentityID == f.value
	default:
		return false
	}
}

// Store persists session records. Every method is atomic per record.
type Store interface {
	// Create inserts r, assigning a ULID when r.ID is empty, and returns the
	// id. A duplicate id or token digest returns ErrRecordConflict.
	Create(ctx context.Context, r Record) (string, error)

	// FindOne returns the record selected by f or ErrRecordNotFound.
	FindOne(ctx context.Context, f Filter) (Record, error)

	// DeleteOne deletes at most one record selected by f. Zero matches is
	// not an error.
	DeleteOne(ctx context.Context, f Filter) (int64, error)

	// DeleteAll deletes every record of an identity. f must be ByIdentity.
	DeleteAll(ctx context.Context, f Filter) (int64, error)

	// Rotate atomically replaces the record holding refreshHash with next
	// and returns the id of the replaced record. When no record holds
	// refreshHash it returns ErrRecordNotFound and writes nothing. Of
	// concurrent calls with the same hash at most one succeeds.
	Rotate(ctx context.Context, refreshHash string, next Record) (string, error)
}

// Purger is implemented by stores that do not expire records on their own.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
