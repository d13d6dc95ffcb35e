// Package postgres is the PostgreSQL storage backend (pgx connection pool).
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plotprep/internal/storage"
)

// Repo implements storage.Repository for Postgres. Inserts use the COPY
// protocol, so there is no parameter limit to batch around.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates the pool and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}
	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		out = append(out, normalize(vals))
	}
	return cols, out, rows.Err()
}

func (r *Repo) EnsureTable(ctx context.Context, table string, columns []storage.Column) error {
	schemaSQL, q, err := createSQL(table, columns)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("postgres: create schema for %s: %w", table, err)
		}
	}
	if _, err := r.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", table, err)
	}
	return nil
}

func (r *Repo) Truncate(ctx context.Context, table string) error {
	_, err := r.pool.Exec(ctx, "TRUNCATE TABLE "+storage.QuoteQualified(table, ident))
	return err
}

func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.CheckRows(columns, rows); err != nil {
		return 0, err
	}
	n, err := r.pool.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", table, err)
	}
	return n, nil
}

// Identifier splits an optionally schema-qualified name for CopyFrom.
func Identifier(name string) pgx.Identifier {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

func splitQualifiedName(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return strings.TrimSpace(name[:i]), strings.TrimSpace(name[i+1:])
	}
	return "", name
}

func createSQL(table string, columns []storage.Column) (schemaSQL, tableSQL string, err error) {
	if len(columns) == 0 {
		return "", "", fmt.Errorf("postgres: table %s has no columns", table)
	}
	if schema, _ := splitQualifiedName(table); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + ident(schema)
	}
	var defs, keys []string
	for _, c := range columns {
		typ := "TEXT"
		switch c.Type {
		case storage.Real:
			typ = "DOUBLE PRECISION"
		case storage.Integer:
			typ = "BIGINT"
		}
		if c.Key {
			keys = append(keys, ident(c.Name))
			typ += " NOT NULL"
		}
		defs = append(defs, ident(c.Name)+" "+typ)
	}
	if len(keys) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Identifier(table).Sanitize(), strings.Join(defs, ", "))
	return schemaSQL, tableSQL, nil
}

func ident(s string) string {
	return pgx.Identifier{s}.Sanitize()
}

// normalize turns driver-specific scan values into the plain types the
// table builder understands.
func normalize(vals []any) []any {
	for i, v := range vals {
		switch x := v.(type) {
		case []byte:
			vals[i] = string(x)
		case float32:
			vals[i] = float64(x)
		case int16:
			vals[i] = int64(x)
		case int32:
			vals[i] = int64(x)
		}
	}
	return vals
}
