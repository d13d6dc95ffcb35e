// Package mssql is the SQL Server storage backend (database/sql with
// go-mssqldb).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"plotprep/internal/storage"
)

// SQL Server rejects statements with more than 2100 parameters.
const maxParams = 2000

// Repo implements storage.Repository for Microsoft SQL Server.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New opens a pool with the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: raw}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: query: %w", err)
	}
	return storage.ScanAll(rows)
}

func (r *Repo) EnsureTable(ctx context.Context, table string, columns []storage.Column) error {
	q, err := createSQL(table, columns)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", table, err)
	}
	return nil
}

func (r *Repo) Truncate(ctx context.Context, table string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM "+storage.QuoteQualified(table, ident))
	return err
}

func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.CheckRows(columns, rows); err != nil {
		return 0, err
	}
	var n int64
	for _, b := range storage.Batches(len(rows), len(columns), maxParams) {
		q := insertSQL(table, columns, b[1]-b[0])
		res, err := r.db.ExecContext(ctx, q, storage.Flatten(rows, b[0], b[1])...)
		if err != nil {
			return n, fmt.Errorf("mssql: insert into %s (rows %d-%d): %w", table, b[0], b[1], err)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	return n, nil
}

func insertSQL(table string, columns []string, nrows int) string {
	return storage.InsertSQL(table, columns, nrows, ident, func(p int) string { return "@p" + strconv.Itoa(p) })
}

// createSQL wraps CREATE TABLE in an OBJECT_ID guard; SQL Server has no
// IF NOT EXISTS for tables.
func createSQL(table string, columns []storage.Column) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("mssql: table %s has no columns", table)
	}
	var defs, keys []string
	for _, c := range columns {
		typ := "NVARCHAR(MAX)"
		switch c.Type {
		case storage.Real:
			typ = "FLOAT"
		case storage.Integer:
			typ = "BIGINT"
		}
		if c.Key {
			keys = append(keys, ident(c.Name))
			if c.Type == storage.Text {
				typ = "NVARCHAR(450)"
			}
			typ += " NOT NULL"
		}
		defs = append(defs, ident(c.Name)+" "+typ)
	}
	if len(keys) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	qualified := storage.QuoteQualified(table, ident)
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s);",
		strings.ReplaceAll(qualified, "'", "''"), qualified, strings.Join(defs, ", ")), nil
}

// ident returns a bracket-quoted identifier, escaping ']' as ']]'.
func ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// dbConn is the part of *sql.DB the repo uses.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

var _ dbConn = (*sql.DB)(nil)
