// Package storage is the SQL access layer: query results feed data
// sources, and prepared chart data can be written back as a table.
//
// Backends register themselves by kind from an init function; import the
// backend package (sqlite, postgres, mssql) for its side effect.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned by New for an unregistered backend kind.
var ErrUnknownKind = errors.New("storage: unknown kind")

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
}

// ColumnType is the portable column type used by EnsureTable.
type ColumnType int

const (
	Real ColumnType = iota
	Integer
	Text
)

func (t ColumnType) String() string {
	switch t {
	case Real:
		return "real"
	case Integer:
		return "integer"
	}
	return "text"
}

// Column describes one column for EnsureTable. Key columns form the
// primary key.
type Column struct {
	Name string
	Type ColumnType
	Key  bool
}

// Repository is the backend-neutral SQL surface.
type Repository interface {
	// Close releases the connection pool. Call once.
	Close()

	// Query runs a read query and returns every row. Values are whatever
	// the driver scans into an any; []byte is converted to string.
	Query(ctx context.Context, query string, args ...any) (columns []string, rows [][]any, err error)

	// EnsureTable creates table if it does not exist.
	EnsureTable(ctx context.Context, table string, columns []Column) error

	// Truncate deletes every row of table.
	Truncate(ctx context.Context, table string) error

	// InsertRows appends rows, batching as the backend's parameter limit
	// requires. It returns the number of rows written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Factory builds a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on an empty
// kind, a nil factory or a duplicate registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a repository with the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}
	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownKind, cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}
