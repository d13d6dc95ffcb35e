// Package transformer carries parsed rows from the file parsers to the
// table collector. Rows are pooled: a long CSV produces one Row per record,
// and reusing them keeps ingest allocation flat.
package transformer

import (
	"strings"
	"sync"
)

// Row is a positional record.
//
// Ownership passes with the Row: a parser sends it on a channel and the
// receiver becomes its only owner. The final consumer calls Free once it
// no longer reads r.V. On cancellation paths use Drop instead, so a Row
// still visible to a draining reader is never handed out again.
type Row struct {
	V    []any
	Line int // 1-based source record number, 0 when unknown
}

var rowPool sync.Pool

// GetRow returns a Row with len(V) == n and every field nil.
func GetRow(n int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < n {
			r.V = make([]any, n)
		}
		r.V = r.V[:n]
		clear(r.V)
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, n)}
}

// Free returns r to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop releases r without pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace. It
// lets hot loops skip strings.TrimSpace for the common clean value.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// TrimCell trims edge whitespace when present.
func TrimCell(s string) string {
	if HasEdgeSpace(s) {
		return strings.TrimSpace(s)
	}
	return s
}
