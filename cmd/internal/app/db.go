package app

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NewDBPool builds a pgxpool from cfg and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, cfg.ConnectTimeout); err != nil {
		pool.Close()
		return nil, errors.Join(ErrBackendNotReady, err)
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// ConnectRedis parses cfg.RedisURL and pings the server, retrying up to
// cfg.ConnectRetries times.
func ConnectRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	var lastErr error
	for range cfg.ConnectRetries {
		rdb := redis.NewClient(opt)
		if lastErr = rdb.Ping(ctx).Err(); lastErr == nil {
			return rdb, nil
		}
		_ = rdb.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrBackendNotReady, ctx.Err())
		case <-time.After(cfg.ConnectRetryPause):
		}
	}
	return nil, errors.Join(ErrBackendNotReady, lastErr)
}

// ConnectMongo connects to cfg.MongoURL and pings the primary, retrying up to
// cfg.ConnectRetries times.
func ConnectMongo(ctx context.Context, cfg Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var lastErr error
	for range cfg.ConnectRetries {
		client, err := mongo.Connect(options.Client().
			ApplyURI(cfg.MongoURL).
			SetConnectTimeout(cfg.ConnectTimeout).
			SetRetryWrites(true).
			SetRetryReads(true))
		if err != nil {
			// A malformed URI fails the same way on every attempt.
			return nil, errors.Join(ErrConfig, err)
		}
		if lastErr = client.Ping(ctx, nil); lastErr == nil {
			return client, nil
		}
		_ = client.Disconnect(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrBackendNotReady, ctx.Err())
		case <-time.After(cfg.ConnectRetryPause):
		}
	}
	return nil, errors.Join(ErrBackendNotReady, lastErr)
}
