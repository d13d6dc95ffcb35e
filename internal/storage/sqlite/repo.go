// Package sqlite is the SQLite storage backend (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"plotprep/internal/storage"
)

// maxParams stays under SQLITE_MAX_VARIABLE_NUMBER (32766).
const maxParams = 32000

// Repo implements storage.Repository for SQLite.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN. An in-memory DSN is pinned to a
// single connection, since every connection would otherwise see its own
// empty database.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if strings.Contains(cfg.DSN, ":memory:") || cfg.DSN == "" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: query: %w", err)
	}
	return storage.ScanAll(rows)
}

func (r *Repo) EnsureTable(ctx context.Context, table string, columns []storage.Column) error {
	q, err := createSQL(table, columns)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", table, err)
	}
	return nil
}

func (r *Repo) Truncate(ctx context.Context, table string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM "+storage.QuoteQualified(table, ident))
	return err
}

// InsertRows writes every batch inside one transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.CheckRows(columns, rows); err != nil {
		return 0, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var n int64
	for _, b := range storage.Batches(len(rows), len(columns), maxParams) {
		q := storage.InsertSQL(table, columns, b[1]-b[0], ident, func(int) string { return "?" })
		res, err := tx.ExecContext(ctx, q, storage.Flatten(rows, b[0], b[1])...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func createSQL(table string, columns []storage.Column) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("sqlite: table %s has no columns", table)
	}
	var defs, keys []string
	for _, c := range columns {
		typ := "TEXT"
		switch c.Type {
		case storage.Real:
			typ = "REAL"
		case storage.Integer:
			typ = "INTEGER"
		}
		defs = append(defs, ident(c.Name)+" "+typ)
		if c.Key {
			keys = append(keys, ident(c.Name))
		}
	}
	if len(keys) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", storage.QuoteQualified(table, ident), strings.Join(defs, ", ")), nil
}

func ident(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
