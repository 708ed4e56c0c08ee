package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessiond/cmd/identity/ids"
)

// PostgresDirectory implements Directory over PostgreSQL.
//
// The pool is owned by the caller and is never closed here. The schema name
// is validated and quoted; the table is created by the service migrations.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
	pw     Passwords
}

var _ Directory = (*PostgresDirectory)(nil)

// PostgresOption configures the directory.
type PostgresOption func(*PostgresDirectory) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "sessiond").
func WithSchema(schema string) PostgresOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool *pgxpool.Pool, pw Passwords, opts ...PostgresOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{pool: pool, schema: "sessiond", pw: pw}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return d, nil
}

func (d *PostgresDirectory) table() string {
	return pgx.Identifier{d.schema, "identities"}.Sanitize()
}

func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (Identity, error) {
	const op = "identity.FindByEmail"

	var out Identity
	var role string
	err := d.pool.QueryRow(ctx,
		`SELECT id, email, name, role, password_hash, created_at
		   FROM `+d.table()+`
		  WHERE email = $1`,
		email,
	).Scan(&out.ID, &out.Email, &out.Name, &role, &out.PasswordHash, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	if err != nil {
		return Identity{}, err
	}
	out.Role = Role(role)
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

func (d *PostgresDirectory) Create(ctx context.Context, draft Draft) (Identity, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return Identity{}, err
	}

	hash, err := d.pw.Hash(draft.Password)
	if err != nil {
		return Identity{}, err
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	id, err := ids.NewULID(now)
	if err != nil {
		return Identity{}, err
	}

	_, err = d.pool.Exec(ctx,
		`INSERT INTO `+d.table()+` (id, email, name, role, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, draft.Email, draft.Name, string(draft.Role), hash, now,
	)
	if err != nil {
		if field, ok := pgUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, err
	}

	return Identity{
		ID:           id,
		Email:        draft.Email,
		Name:         draft.Name,
		Role:         draft.Role,
		PasswordHash: hash,
		CreatedAt:    now,
	}, nil
}

func (d *PostgresDirectory) VerifyPassword(plain, hash string) (bool, error) {
	return d.pw.Verify(plain, hash)
}

// pgUniqueViolation maps a unique_violation to its logical field.
func pgUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	c := strings.ToLower(pgErr.ConstraintName)
	switch {
	case c == "uq_identities_email", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
