package prepare

import (
	"fmt"
	"math"

	"github.com/aclements/go-gg/table"

	"plotprep/internal/frame"
)

// RangeKind selects how a RangeSpec is interpreted.
type RangeKind uint8

const (
	ByRow RangeKind = iota
	ByValue
)

// RangeSpec restricts the rows considered before expansion and sampling:
// either the inclusive row positions [Start, End], or the rows whose x value
// lies in the inclusive interval [Min, Max].
type RangeSpec struct {
	Kind       RangeKind
	Start, End int
	Min, Max   float64
}

// RowRange is the inclusive position range [start, end].
func RowRange(start, end int) *RangeSpec {
	return &RangeSpec{Kind: ByRow, Start: start, End: end}
}

// ValueRange is the inclusive x value range [min, max].
func ValueRange(min, max float64) *RangeSpec {
	return &RangeSpec{Kind: ByValue, Min: min, Max: max}
}

func (r RangeSpec) String() string {
	if r.Kind == ByValue {
		return fmt.Sprintf("x in [%g, %g]", r.Min, r.Max)
	}
	return fmt.Sprintf("rows [%d, %d]", r.Start, r.End)
}

// Rows returns the matching row positions of t in increasing order.
//
// Row ranges are clamped into [0, t.Len()); start > end selects nothing,
// as does Min > Max.
// Value ranges need a numeric x column and skip rows whose x is NaN; on a
// non-numeric or missing x they select nothing and report why.
func (r RangeSpec) Rows(t *table.Table, x string) ([]int, error) {
	n := t.Len()
	switch r.Kind {
	case ByRow:
		start, end := r.Start, r.End
		if start < 0 {
			start = 0
		}
		if end > n-1 {
			end = n - 1
		}
		if start > end {
			return []int{}, nil
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil

	case ByValue:
		xs, ok := frame.Floats(t, x)
		if !ok {
			return []int{}, fmt.Errorf("value range needs a numeric x column, %q is not", x)
		}
		out := make([]int, 0)
		for i, v := range xs {
			if !math.IsNaN(v) && v >= r.Min && v <= r.Max {
				out = append(out, i)
			}
		}
		return out, nil
	}
	return []int{}, fmt.Errorf("unknown range kind %d", r.Kind)
}
