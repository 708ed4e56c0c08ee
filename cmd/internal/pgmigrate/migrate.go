// Package pgmigrate applies the embedded PostgreSQL schema with goose.
//
// The SQL files are text/template sources. {{.Schema}} expands to the quoted
// schema and {{.Table "name"}} to the quoted schema-qualified table, the same
// spelling the Postgres stores query.
package pgmigrate

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sync"
	"testing/fstest"
	"text/template"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DefaultSchema matches the stores' default.
const DefaultSchema = "sessiond"

// ErrMigrate wraps every migration failure.
var ErrMigrate = errors.New("failed to apply migrations")

//go:embed migrations/*.sql
var migrations embed.FS

const dir = "migrations"

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type vars struct {
	schema string
}

func (v vars) Schema() string { return pgx.Identifier{v.schema}.Sanitize() }

func (v vars) Table(name string) string { return pgx.Identifier{v.schema, name}.Sanitize() }

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// VersionTable is the goose version table for schema. It lives in the
// search path because goose creates it before the first migration runs.
func VersionTable(schema string) string {
	return schema + "_schema_migrations"
}

// Render expands the embedded migrations for schema.
func Render(schema string) (fs.FS, error) {
	if !schemaRe.MatchString(schema) {
		return nil, fmt.Errorf("%w: invalid schema identifier %q", ErrMigrate, schema)
	}
	data := vars{schema: schema}

	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, errors.Join(ErrMigrate, err)
	}
	out := fstest.MapFS{}
	for _, e := range entries {
		name := path.Join(dir, e.Name())
		tmpl, err := template.ParseFS(migrations, name)
		if err != nil {
			return nil, errors.Join(ErrMigrate, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, errors.Join(ErrMigrate, fmt.Errorf("render %s: %w", e.Name(), err))
		}
		out[name] = &fstest.MapFile{Data: buf.Bytes(), Mode: 0o444}
	}
	return out, nil
}

// Up applies all pending migrations for schema through pool.
func Up(ctx context.Context, pool *pgxpool.Pool, schema string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if pool == nil {
		return fmt.Errorf("%w: pool is nil", ErrMigrate)
	}

	fsys, err := Render(schema)
	if err != nil {
		return err
	}

	// goose needs database/sql; this shares the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "migrate.db.close", "error", err)
		}
	}()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	goose.SetLogger(slogAdapter{log: log})
	goose.SetTableName(VersionTable(schema))
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrate, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrMigrate, err)
	}
	log.InfoContext(ctx, "migrate.up", "schema", schema)
	return nil
}

// slogAdapter routes goose's Printf-style output through slog.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Fatalf(format string, v ...any) {
	a.log.Error(fmt.Sprintf(format, v...), "component", "migrate")
}

func (a slogAdapter) Printf(format string, v ...any) {
	a.log.Info(fmt.Sprintf(format, v...), "component", "migrate")
}
