package session

import (
	"context"
	"sync"
	"time"

	"sessiond/cmd/identity/ids"
)

// MemoryStore keeps records in process memory with an index per token
// digest and per identity. One mutex guards all indexes so multi-index
// updates are atomic.
type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]Record
	byAccess   map[string]string
	byRefresh  map[string]string
	byIdentity map[string]map[string]struct{}
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Purger = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]Record),
		byAccess:   make(map[string]string),
		byRefresh:  make(map[string]string),
		byIdentity: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Create(ctx context.Context, r Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := prepare(&r); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conflictLocked(r); err != nil {
		return "", err
	}
	s.insertLocked(r)
	return r.ID, nil
}

func (s *MemoryStore) FindOne(ctx context.Context, f Filter) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if !f.valid() {
		return Record{}, ErrInvalidFilter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.lookupLocked(f)
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return s.records[id], nil
}

func (s *MemoryStore) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !f.valid() {
		return 0, ErrInvalidFilter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.lookupLocked(f)
	if !ok {
		return 0, nil
	}
	s.removeLocked(id)
	return 1, nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.key != keyIdentity || !f.valid() {
		return 0, ErrInvalidFilter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id := range s.byIdentity[f.value] {
		s.removeLocked(id)
		n++
	}
	return n, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, refreshHash string, next Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if refreshHash == "" {
		return "", ErrInvalidFilter
	}
	if err := prepare(&next); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldID, ok := s.byRefresh[refreshHash]
	if !ok {
		return "", ErrRecordNotFound
	}
	old := s.records[oldID]
	s.removeLocked(oldID)
	if err := s.conflictLocked(next); err != nil {
		s.insertLocked(old)
		return "", err
	}
	s.insertLocked(next)
	return oldID, nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if !r.ExpiresAt.After(now) {
			s.removeLocked(id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) lookupLocked(f Filter) (string, bool) {
	switch f.key {
	case keyID:
		_, ok := s.records[f.value]
		return f.value, ok
	case keyAccess:
		id, ok := s.byAccess[f.value]
		return id, ok
	case keyRefresh:
		id, ok := s.byRefresh[f.value]
		return id, ok
	case keyIdentity:
		for id := range s.byIdentity[f.value] {
			return id, true
		}
	}
	return "", false
}

func (s *MemoryStore) conflictLocked(r Record) error {
	if _, ok := s.records[r.ID]; ok {
		return ErrRecordConflict
	}
	if _, ok := s.byAccess[r.AccessTokenHash]; ok {
		return ErrRecordConflict
	}
	if _, ok := s.byRefresh[r.RefreshTokenHash]; ok {
		return ErrRecordConflict
	}
	return nil
}

func (s *MemoryStore) insertLocked(r Record) {
	s.records[r.ID] = r
	s.byAccess[r.AccessTokenHash] = r.ID
	s.byRefresh[r.RefreshTokenHash] = r.ID
	set, ok := s.byIdentity[r.IdentityID]
	if !ok {
		set = make(map[string]struct{})
		s.byIdentity[r.IdentityID] = set
	}
	set[r.ID] = struct{}{}
}

func (s *MemoryStore) removeLocked(id string) {
	r, ok := s.records[id]
	if !ok {
		return
	}
	delete(s.records, id)
	delete(s.byAccess, r.AccessTokenHash)
	delete(s.byRefresh, r.RefreshTokenHash)
	if set := s.byIdentity[r.IdentityID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byIdentity, r.IdentityID)
		}
	}
}

// prepare validates r and assigns an id and creation time when missing.
// Shared by every backend.
func prepare(r *Record) error {
	if r.IdentityID == "" || r.AccessTokenHash == "" || r.RefreshTokenHash == "" {
		return ErrInvalidRecord
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.ID == "" {
		id, err := ids.NewULID(r.CreatedAt)
		if err != nil {
			return err
		}
		r.ID = id
	}
	return nil
}
