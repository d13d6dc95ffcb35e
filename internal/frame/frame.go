// Package frame holds the table helpers shared by the pipeline: typed
// column access, row selection by position and loaded-source identity.
//
// Tables are go-gg tables. Numeric columns are []float64 with NaN for
// missing values, everything else is []string with "" for missing.
package frame

import (
	"time"

	"github.com/aclements/go-gg/generic/slice"
	"github.com/aclements/go-gg/table"
	"github.com/google/uuid"
)

// Source is one loaded table. ID is unique per load, so replacing a file
// with new contents never reuses cached artifacts of the old one.
type Source struct {
	ID       string
	Name     string
	Table    *table.Table
	LoadedAt time.Time
}

// NewSource wraps t with a fresh identity.
func NewSource(name string, t *table.Table) Source {
	if t == nil {
		t = new(table.Table)
	}
	return Source{ID: uuid.NewString(), Name: name, Table: t, LoadedAt: time.Now()}
}

// Identity returns [0, 1, ..., n-1].
func Identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Floats returns col as []float64 when it is numeric.
func Floats(t *table.Table, col string) ([]float64, bool) {
	if t == nil {
		return nil, false
	}
	xs, ok := t.Column(col).([]float64)
	return xs, ok
}

// IsNumeric reports whether col exists and is numeric.
func IsNumeric(t *table.Table, col string) bool {
	_, ok := Floats(t, col)
	return ok
}

// Has reports whether t has col.
func Has(t *table.Table, col string) bool {
	return t != nil && t.Column(col) != nil
}

// Take returns the rows of t at the given positions, in that order, keeping
// every column's type.
func Take(t *table.Table, rows []int) *table.Table {
	if t == nil || len(t.Columns()) == 0 {
		return new(table.Table)
	}
	b := new(table.Builder)
	for _, c := range t.Columns() {
		b.Add(c, slice.Select(t.Column(c), rows))
	}
	return b.Done()
}

// Select keeps only cols (in that order); unknown names are skipped.
func Select(t *table.Table, cols []string) *table.Table {
	if t == nil {
		return new(table.Table)
	}
	b := new(table.Builder)
	n := 0
	for _, c := range cols {
		if v := t.Column(c); v != nil {
			b.Add(c, v)
			n++
		}
	}
	if n == 0 {
		return new(table.Table)
	}
	return b.Done()
}

// Attach adds the columns of extra to base by row position. Both must have
// the same length; an empty extra returns base.
func Attach(base, extra *table.Table) *table.Table {
	if extra == nil || len(extra.Columns()) == 0 {
		return base
	}
	if base == nil || len(base.Columns()) == 0 {
		return extra
	}
	b := table.NewBuilder(base)
	for _, c := range extra.Columns() {
		b.Add(c, extra.Column(c))
	}
	return b.Done()
}
