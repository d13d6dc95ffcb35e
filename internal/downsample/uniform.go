// Package downsample reduces a table to a target number of rows for
// plotting.
//
// Two samplers are provided. Simple keeps every stride-th row and works for
// any x axis. LTTB (Largest-Triangle-Three-Buckets) keeps, per bucket, the
// point that spans the largest triangle with its neighbours, which preserves
// the visual shape of a series; it needs a numeric x axis and falls back to
// Simple otherwise. Both return the positions of the kept rows so callers
// can map plotted points back to source rows.
package downsample

import (
	"github.com/aclements/go-gg/table"

	"plotprep/internal/frame"
)

// Method names the sampler that produced a result.
type Method string

const (
	None    Method = "none"
	Uniform Method = "uniform"
	Lttb    Method = "lttb"
)

// UniformIndices selects stride positions out of n rows: 0, s, 2s, ... with
// s = n/target, at most target of them, plus n-1 when the last stride
// position is not already the last row. The result is at most target+1
// long, strictly increasing and always holds 0 and n-1.
// When n <= target or target <= 0 every position is returned.
func UniformIndices(n, target int) []int {
	if target <= 0 || n <= target {
		return frame.Identity(n)
	}
	stride := n / target
	out := make([]int, 0, target+1)
	for i := 0; i < target; i++ {
		out = append(out, i*stride)
	}
	if out[len(out)-1] != n-1 {
		out = append(out, n-1)
	}
	return out
}

// Simple keeps the UniformIndices rows of t. When nothing needs dropping it
// returns t itself.
func Simple(t *table.Table, target int) (*table.Table, []int) {
	if t == nil {
		return new(table.Table), nil
	}
	n := t.Len()
	rows := UniformIndices(n, target)
	if len(rows) == n {
		return t, rows
	}
	return frame.Take(t, rows), rows
}
