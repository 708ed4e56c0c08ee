package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"sessiond/cmd/internal/auth/session"
)

type failingPurger struct{}

func (failingPurger) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("boom")
}

func TestPurgeOnce(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	now := time.Now().UTC()
	for i, exp := range []time.Duration{-time.Minute, time.Hour} {
		_, err := store.Create(context.Background(), session.Record{
			IdentityID:       "01HZZZZZZZZZZZZZZZZZZZZZZZ",
			AccessTokenHash:  string(rune('a'+i)) + "-access",
			RefreshTokenHash: string(rune('a'+i)) + "-refresh",
			CreatedAt:        now.Add(-2 * time.Hour),
			ExpiresAt:        now.Add(exp),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if n := purgeOnce(context.Background(), store, now, testLogger()); n != 1 {
		t.Fatalf("purged %d want 1", n)
	}
	if store.Len() != 1 {
		t.Fatalf("remaining=%d want 1", store.Len())
	}
	if n := purgeOnce(context.Background(), failingPurger{}, now, testLogger()); n != 0 {
		t.Fatalf("failing purge reported %d", n)
	}
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runJanitor(ctx, session.NewMemoryStore(), time.Millisecond, time.Now, testLogger())
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runJanitor: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not stop")
	}
}
