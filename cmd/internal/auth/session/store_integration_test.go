package session

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"sessiond/cmd/identity/ids"
	"sessiond/cmd/internal/pgmigrate"
)

func TestPostgresStore_Contract(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)

	s, err := NewPostgresStore(pool, "sessiond")
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	runStoreContract(t, s, testIdentityID(t))

	expired := testRecord(t, testIdentityID(t))
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	if _, err := s.Create(context.Background(), expired); err != nil {
		t.Fatalf("Create: %v", err)
	}
	n, err := s.PurgeExpired(context.Background(), time.Now())
	if err != nil || n < 1 {
		t.Fatalf("PurgeExpired: n=%d err=%v", n, err)
	}
}

func TestNewPostgresStore_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresStore(nil, "sessiond"); err == nil {
		t.Fatalf("expected nil pool error")
	}
}

func TestRedisStore_Contract(t *testing.T) {
	t.Parallel()

	rdb := mustOpenTestRedis(t)
	prefix := "sessiond_it:" + testIdentityID(t) + ":"
	runStoreContract(t, NewRedisStore(rdb, prefix), testIdentityID(t))
}

func TestRedisStore_FindByIdentitySkipsDanglingMembers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rdb := mustOpenTestRedis(t)
	prefix := "sessiond_it:" + testIdentityID(t) + ":"
	s := NewRedisStore(rdb, prefix)
	identityID := testIdentityID(t)

	live := testRecord(t, identityID)
	liveID, err := s.Create(ctx, live)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Members whose records expired out from under the set.
	for _, id := range []string{"gone-1", "gone-2", "gone-3"} {
		if err := rdb.SAdd(ctx, s.identityKey(identityID), id).Err(); err != nil {
			t.Fatalf("SAdd: %v", err)
		}
	}

	got, err := s.FindOne(ctx, ByIdentity(identityID))
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got.ID != liveID {
		t.Fatalf("FindOne returned %q, want %q", got.ID, liveID)
	}

	n, err := s.DeleteAll(ctx, ByIdentity(identityID))
	if err != nil || n != 1 {
		t.Fatalf("DeleteAll: n=%d err=%v", n, err)
	}
	if left, err := rdb.SCard(ctx, s.identityKey(identityID)).Result(); err != nil || left != 0 {
		t.Fatalf("identity set should be empty, got %d (%v)", left, err)
	}
}

func TestMongoStore_Contract(t *testing.T) {
	t.Parallel()

	db := mustOpenTestMongo(t)
	s := NewMongoStore(db)
	if err := s.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	runStoreContract(t, s, testIdentityID(t))
}

func testIdentityID(t *testing.T) string {
	t.Helper()
	id, err := ids.NewULID(time.Now())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("SESSIOND_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: SESSIOND_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	if err := pgmigrate.Up(ctx, pool, pgmigrate.DefaultSchema, nil); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func mustOpenTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("SESSIOND_TEST_REDIS_URL"))
	if raw == "" {
		t.Skip("integration test skipped: SESSIOND_TEST_REDIS_URL is not set")
	}

	opts, err := redis.ParseURL(raw)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Redis unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	return rdb
}

func mustOpenTestMongo(t *testing.T) *mongo.Database {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("SESSIOND_TEST_MONGO_URL"))
	if raw == "" {
		t.Skip("integration test skipped: SESSIOND_TEST_MONGO_URL is not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(raw))
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("integration test skipped: Mongo unreachable: %v", err)
	}
	return client.Database("sessiond_it")
}

func shouldSkipIntegration(err error) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
