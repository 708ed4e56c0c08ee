package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemoryStore(), "01J00000000000000000000MEM")
}

func TestMemoryStore_RejectsIncompleteRecords(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	cases := []struct {
		name string
		mut  func(*Record)
	}{
		{"no identity", func(r *Record) { r.IdentityID = "" }},
		{"no access hash", func(r *Record) { r.AccessTokenHash = "" }},
		{"no refresh hash", func(r *Record) { r.RefreshTokenHash = "" }},
	}
	for _, tc := range cases {
		r := testRecord(t, "id-1")
		tc.mut(&r)
		if _, err := s.Create(context.Background(), r); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("%s: expected ErrInvalidRecord, got %v", tc.name, err)
		}
	}
	if _, err := s.FindOne(context.Background(), Filter{}); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("zero filter: expected ErrInvalidFilter, got %v", err)
	}
}

func TestMemoryStore_RotateConflictKeepsOld(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	a := testRecord(t, "id-1")
	b := testRecord(t, "id-1")
	for _, r := range []Record{a, b} {
		if _, err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	next := testRecord(t, "id-1")
	next.AccessTokenHash = b.AccessTokenHash
	if _, err := s.Rotate(ctx, a.RefreshTokenHash, next); !errors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected ErrRecordConflict, got %v", err)
	}
	if _, err := s.FindOne(ctx, ByRefreshHash(a.RefreshTokenHash)); err != nil {
		t.Fatalf("old record should be restored: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", s.Len())
	}
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	live := testRecord(t, "id-1")
	live.ExpiresAt = now.Add(time.Minute)
	dead := testRecord(t, "id-1")
	dead.ExpiresAt = now.Add(-time.Minute)
	for _, r := range []Record{live, dead} {
		if _, err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := s.PurgeExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired: n=%d err=%v", n, err)
	}
	if _, err := s.FindOne(ctx, ByAccessHash(live.AccessTokenHash)); err != nil {
		t.Fatalf("live record purged: %v", err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryStore().Create(ctx, testRecord(t, "id-1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
