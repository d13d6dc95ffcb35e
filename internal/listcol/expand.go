package listcol

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/aclements/go-gg/table"

	"plotprep/internal/cache"
	"plotprep/internal/metrics"
)

// DefaultBudget caps a single column matrix at 256 MiB.
const DefaultBudget int64 = 256 << 20

var (
	ErrNoColumn = errors.New("listcol: no such column")
	ErrNotList  = errors.New("listcol: column is not textual")
)

// Logger is the minimal logging interface used by the expander.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Expander serves channel subsets of list columns from cached matrices.
//
// The matrix for a column is always built over the full source column, so
// one cache entry serves every row subset of that source. Callers that work
// on a filtered view pass the original row ids they hold.
type Expander struct {
	// Cache stores matrices by (source id, column). A nil Cache disables
	// caching.
	Cache *cache.Store[*Matrix]
	// Budget rejects matrices larger than this many bytes; <= 0 disables
	// the check.
	Budget int64
	Logger Logger
}

// NewExpander returns an expander with DefaultBudget. A nil store gets a
// fresh one.
func NewExpander(store *cache.Store[*Matrix]) *Expander {
	if store == nil {
		store = cache.New[*Matrix]("matrix")
	}
	return &Expander{Cache: store, Budget: DefaultBudget}
}

// ChannelName is the column name of a channel: "v #1" for index 0.
func ChannelName(column string, index int) string {
	return fmt.Sprintf("%s #%d", column, index+1)
}

// ExpandTable expands column of t for the requested channel indices.
// key identifies t's source; its Column is set to column. Requested
// indices outside the matrix width are dropped. It never fails: a missing
// column or a rejected matrix yields an empty table.
func (e *Expander) ExpandTable(t *table.Table, column string, channels []int, key cache.Key) *table.Table {
	key.Column = column
	return e.Expand(t, key, channels, nil)
}

// Expand is ExpandTable for a row subset: rows are original row ids of t,
// and the result has one row per id. A nil rows means every row of t.
func (e *Expander) Expand(t *table.Table, key cache.Key, channels []int, rows []int) *table.Table {
	out, err := e.ExpandErr(t, key, channels, rows)
	if err != nil {
		e.logger()("stage=expand column=%q status=degraded err=%v", key.Column, err)
		return new(table.Table)
	}
	return out
}

// ExpandErr is Expand that reports why nothing could be expanded.
func (e *Expander) ExpandErr(t *table.Table, key cache.Key, channels []int, rows []int) (*table.Table, error) {
	m, err := e.Matrix(t, key)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(channels))
	b := new(table.Builder)
	added := 0
	for _, ch := range channels {
		if ch < 0 || ch >= m.Cols || seen[ch] {
			continue
		}
		seen[ch] = true
		b.Add(ChannelName(key.Column, ch), m.Channel(ch, rows))
		added++
	}
	if added == 0 {
		return new(table.Table), nil
	}
	return b.Done(), nil
}

// Matrix returns the channel matrix of key.Column in t, parsing the column
// on first use. t must be the full source table key.Source refers to.
func (e *Expander) Matrix(t *table.Table, key cache.Key) (*Matrix, error) {
	build := func() (*Matrix, int64, error) {
		if t == nil {
			return nil, 0, fmt.Errorf("%w: %q", ErrNoColumn, key.Column)
		}
		col := t.Column(key.Column)
		if col == nil {
			return nil, 0, fmt.Errorf("%w: %q", ErrNoColumn, key.Column)
		}
		cells, ok := col.([]string)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %q is %T", ErrNotList, key.Column, col)
		}

		start := time.Now()
		m, err := BuildMatrix(cells, e.Budget)
		if err != nil {
			metrics.RecordStage("expand_parse", "error", time.Since(start))
			return nil, 0, err
		}
		metrics.RecordStage("expand_parse", "ok", time.Since(start))
		e.logger()("stage=expand_parse column=%q rows=%d channels=%d ok duration=%s",
			key.Column, m.Rows, m.Cols, durMS(start))
		return m, m.Bytes(), nil
	}

	if e.Cache == nil {
		m, _, err := build()
		return m, err
	}
	m, _, err := e.Cache.GetOrCompute(key, build)
	return m, err
}

func (e *Expander) logger() func(format string, v ...any) {
	if e.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return e.Logger.Printf
}

func durMS(start time.Time) time.Duration {
	return time.Since(start).Truncate(time.Millisecond)
}
