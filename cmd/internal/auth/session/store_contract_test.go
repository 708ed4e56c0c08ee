package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sessiond/cmd/identity/ids"
)

// testRecord builds a record whose digests are unique per call.
func testRecord(t *testing.T, identityID string) Record {
	t.Helper()
	id, err := ids.NewULID(time.Now())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	return Record{
		IdentityID:       identityID,
		AccessTokenHash:  "a-" + id,
		RefreshTokenHash: "r-" + id,
		UserAgent:        "curl/8.0",
		IP:               "203.0.113.7",
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Hour),
	}
}

// runStoreContract exercises the behavior every Store backend shares.
func runStoreContract(t *testing.T, s Store, identityID string) {
	ctx := context.Background()

	t.Run("create and find by every key", func(t *testing.T) {
		r := testRecord(t, identityID)
		id, err := s.Create(ctx, r)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if id == "" {
			t.Fatalf("expected assigned id")
		}

		for _, f := range []Filter{ByID(id), ByAccessHash(r.AccessTokenHash), ByRefreshHash(r.RefreshTokenHash)} {
			got, err := s.FindOne(ctx, f)
			if err != nil {
				t.Fatalf("FindOne(%s): %v", f, err)
			}
			if got.ID != id || got.IdentityID != identityID || got.UserAgent != r.UserAgent || got.IP != r.IP {
				t.Fatalf("FindOne(%s) = %+v", f, got)
			}
			if !got.ExpiresAt.Equal(r.ExpiresAt) {
				t.Fatalf("expires_at: got %v want %v", got.ExpiresAt, r.ExpiresAt)
			}
		}
	})

	t.Run("duplicate digest conflicts", func(t *testing.T) {
		r := testRecord(t, identityID)
		if _, err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
		dup := testRecord(t, identityID)
		dup.RefreshTokenHash = r.RefreshTokenHash
		if _, err := s.Create(ctx, dup); !errors.Is(err, ErrRecordConflict) {
			t.Fatalf("expected ErrRecordConflict, got %v", err)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		if _, err := s.FindOne(ctx, ByAccessHash("nope-"+identityID)); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
		n, err := s.DeleteOne(ctx, ByAccessHash("nope-"+identityID))
		if err != nil || n != 0 {
			t.Fatalf("DeleteOne missing: n=%d err=%v", n, err)
		}
	})

	t.Run("delete one", func(t *testing.T) {
		r := testRecord(t, identityID)
		if _, err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
		n, err := s.DeleteOne(ctx, ByAccessHash(r.AccessTokenHash))
		if err != nil || n != 1 {
			t.Fatalf("DeleteOne: n=%d err=%v", n, err)
		}
		if _, err := s.FindOne(ctx, ByRefreshHash(r.RefreshTokenHash)); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("refresh index should be gone, got %v", err)
		}
	})

	t.Run("rotate replaces exactly once", func(t *testing.T) {
		old := testRecord(t, identityID)
		oldID, err := s.Create(ctx, old)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		const racers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := testRecord(t, identityID)
				prevID, err := s.Rotate(ctx, old.RefreshTokenHash, next)
				switch {
				case err == nil:
					if prevID != oldID {
						t.Errorf("Rotate returned %q, want %q", prevID, oldID)
					}
					mu.Lock()
					wins++
					mu.Unlock()
				case errors.Is(err, ErrRecordNotFound):
				default:
					t.Errorf("Rotate: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("expected exactly one rotation, got %d", wins)
		}
		if _, err := s.FindOne(ctx, ByAccessHash(old.AccessTokenHash)); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("old record should be gone, got %v", err)
		}
	})

	t.Run("rotate unknown hash writes nothing", func(t *testing.T) {
		next := testRecord(t, identityID)
		if _, err := s.Rotate(ctx, "unknown-"+next.RefreshTokenHash, next); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
		if _, err := s.FindOne(ctx, ByAccessHash(next.AccessTokenHash)); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("next must not be stored, got %v", err)
		}
	})

	t.Run("delete all by identity", func(t *testing.T) {
		other := identityID + "-other"
		keep := testRecord(t, other)
		if _, err := s.Create(ctx, keep); err != nil {
			t.Fatalf("Create: %v", err)
		}

		n, err := s.DeleteAll(ctx, ByIdentity(identityID))
		if err != nil {
			t.Fatalf("DeleteAll: %v", err)
		}
		if n < 1 {
			t.Fatalf("expected deletions, got %d", n)
		}
		if _, err := s.FindOne(ctx, ByIdentity(identityID)); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("identity should have no sessions, got %v", err)
		}
		if _, err := s.FindOne(ctx, ByAccessHash(keep.AccessTokenHash)); err != nil {
			t.Fatalf("other identity's session must survive: %v", err)
		}
		if _, err := s.DeleteAll(ctx, ByID(keep.ID)); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("DeleteAll requires ByIdentity, got %v", err)
		}
	})
}
