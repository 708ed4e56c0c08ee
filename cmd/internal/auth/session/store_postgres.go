package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the sessions table created by the
// service migrations. The pool is owned by the caller.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var (
	_ Store  = (*PostgresStore)(nil)
	_ Purger = (*PostgresStore)(nil)
)

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresStore creates a Postgres-backed store in schema (default
// "sessiond").
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	if schema == "" {
		schema = "sessiond"
	}
	if !pgIdentRe.MatchString(schema) {
		return nil, fmt.Errorf("%w: invalid schema identifier %q", ErrConfig, schema)
	}
	return &PostgresStore{pool: pool, table: pgx.Identifier{schema, "sessions"}.Sanitize()}, nil
}

const pgRecordColumns = `id, identity_id, access_token_hash, refresh_token_hash, user_agent, ip, created_at, expires_at`

func (s *PostgresStore) Create(ctx context.Context, r Record) (string, error) {
	if err := prepare(&r); err != nil {
		return "", err
	}
	if err := insertRecord(ctx, s.pool, s.table, r); err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *PostgresStore) FindOne(ctx context.Context, f Filter) (Record, error) {
	if !f.valid() {
		return Record{}, ErrInvalidFilter
	}

	var (
		r      Record
		ua, ip *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT `+pgRecordColumns+`
		FROM `+s.table+`
		WHERE `+f.String()+` = $1
		LIMIT 1
	`, f.value).Scan(
		&r.ID,
		&r.IdentityID,
		&r.AccessTokenHash,
		&r.RefreshTokenHash,
		&ua,
		&ip,
		&r.CreatedAt,
		&r.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}

	r.UserAgent = deref(ua)
	r.IP = deref(ip)
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return r, nil
}

func (s *PostgresStore) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	if !f.valid() {
		return 0, ErrInvalidFilter
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table+`
		WHERE id = (SELECT id FROM `+s.table+` WHERE `+f.String()+` = $1 LIMIT 1)
	`, f.value)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, f Filter) (int64, error) {
	if f.key != keyIdentity || !f.valid() {
		return 0, ErrInvalidFilter
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE identity_id = $1`, f.value)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Rotate deletes the old row and inserts next in one transaction. A
// concurrent rotation of the same hash blocks on the row lock and then
// deletes nothing.
func (s *PostgresStore) Rotate(ctx context.Context, refreshHash string, next Record) (string, error) {
	if refreshHash == "" {
		return "", ErrInvalidFilter
	}
	if err := prepare(&next); err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var oldID string
	err = tx.QueryRow(ctx, `
		DELETE FROM `+s.table+`
		WHERE refresh_token_hash = $1
		RETURNING id
	`, refreshHash).Scan(&oldID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}

	if err := insertRecord(ctx, tx, s.table, next); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return oldID, nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRecord(ctx context.Context, db pgExecer, table string, r Record) error {
	_, err := db.Exec(ctx, `
		INSERT INTO `+table+` (`+pgRecordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		r.ID,
		r.IdentityID,
		r.AccessTokenHash,
		r.RefreshTokenHash,
		nullIfEmpty(r.UserAgent),
		nullIfEmpty(r.IP),
		r.CreatedAt,
		r.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return ErrRecordConflict
	}
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
