package downsample

import (
	"fmt"
	"io"
	"log"
	"math"

	"github.com/aclements/go-gg/table"

	"plotprep/internal/frame"
)

// Logger is the minimal logging interface used by the samplers.
type Logger interface {
	Printf(format string, v ...any)
}

// LTTBIndices runs classic LTTB over the points (xs[i], ys[i]) and returns
// exactly threshold positions, strictly increasing, first and last
// included. Points are taken in slice order; xs need not be sorted.
//
// Edge cases:
//   - len(xs) <= threshold or threshold <= 0: every position.
//   - threshold 1 or 2: the first and last positions.
func LTTBIndices(xs, ys []float64, threshold int) []int {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if threshold <= 0 || n <= threshold {
		return frame.Identity(n)
	}
	if threshold < 3 {
		return []int{0, n - 1}
	}

	out := make([]int, 0, threshold)
	out = append(out, 0)

	every := float64(n-2) / float64(threshold-2)
	a := 0
	for i := 0; i < threshold-2; i++ {
		// Centroid of the next bucket (the last point for the final bucket).
		avgStart := int(float64(i+1)*every) + 1
		avgEnd := int(float64(i+2)*every) + 1
		if avgEnd > n {
			avgEnd = n
		}
		var avgX, avgY float64
		for j := avgStart; j < avgEnd; j++ {
			avgX += xs[j]
			avgY += ys[j]
		}
		if cnt := avgEnd - avgStart; cnt > 0 {
			avgX /= float64(cnt)
			avgY /= float64(cnt)
		}

		lo := int(float64(i)*every) + 1
		hi := int(float64(i+1)*every) + 1
		ax, ay := xs[a], ys[a]
		maxArea := -1.0
		next := lo
		for j := lo; j < hi; j++ {
			area := math.Abs((ax-avgX)*(ys[j]-ay)-(ax-xs[j])*(avgY-ay)) * 0.5
			if area > maxArea {
				maxArea = area
				next = j
			}
		}
		out = append(out, next)
		a = next
	}
	return append(out, n-1)
}

// LTTB downsamples t to roughly threshold rows using column x as the axis
// and every column in ys as a series. See Sample.
func LTTB(t *table.Table, x string, ys []string, threshold int) (*table.Table, []int) {
	r := Sample(t, x, ys, threshold, nil)
	return r.Table, r.Rows
}

// Result is the outcome of Sample.
type Result struct {
	Table  *table.Table
	Rows   []int // positions in the input table, increasing
	Method Method
	// Dropped lists y columns whose LTTB run failed and contributed nothing.
	Dropped []string
}

// Sample is LTTB with a report.
//
// Each numeric y column is sampled on its own, over the rows where both x
// and y are present; a column that already fits keeps all of those rows.
// The kept positions of all columns are merged, and the first and last rows
// of t are always kept. Non-numeric y columns are skipped.
//
// Falls back to Simple(t, threshold) when x is not numeric, threshold < 3,
// or the merged set is empty or smaller than threshold/2. A panic while
// sampling one column drops that column's contribution only.
func Sample(t *table.Table, x string, ys []string, threshold int, logger Logger) Result {
	logf := logfOf(logger)
	if t == nil {
		return Result{Table: new(table.Table), Method: None}
	}
	n := t.Len()
	if threshold <= 0 || n <= threshold {
		return Result{Table: t, Rows: frame.Identity(n), Method: None}
	}

	xs, ok := frame.Floats(t, x)
	if !ok || threshold < 3 {
		if !ok {
			logf("stage=lttb x=%q status=fallback reason=non_numeric_x", x)
		}
		return uniform(t, threshold)
	}

	keep := make([]bool, n)
	count := 0
	var dropped []string
	for _, y := range ys {
		yv, ok := frame.Floats(t, y)
		if !ok {
			continue
		}
		rows, err := sampleColumn(xs, yv, threshold)
		if err != nil {
			logf("stage=lttb column=%q status=dropped err=%v", y, err)
			dropped = append(dropped, y)
			continue
		}
		for _, r := range rows {
			if !keep[r] {
				keep[r] = true
				count++
			}
		}
	}

	if count == 0 || count < threshold/2 {
		logf("stage=lttb x=%q status=fallback reason=degenerate kept=%d threshold=%d", x, count, threshold)
		r := uniform(t, threshold)
		r.Dropped = dropped
		return r
	}

	keep[0], keep[n-1] = true, true
	rows := make([]int, 0, count+2)
	for i, k := range keep {
		if k {
			rows = append(rows, i)
		}
	}
	return Result{Table: frame.Take(t, rows), Rows: rows, Method: Lttb, Dropped: dropped}
}

// sampleColumn returns positions (into the full column) kept for one y
// column.
func sampleColumn(xs, ys []float64, threshold int) (rows []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("lttb panic: %v", r)
		}
	}()

	pos := make([]int, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		pos = append(pos, i)
	}
	if len(pos) <= threshold {
		return pos, nil
	}

	px := make([]float64, len(pos))
	py := make([]float64, len(pos))
	for k, i := range pos {
		px[k], py[k] = xs[i], ys[i]
	}
	sel := LTTBIndices(px, py, threshold)
	rows = make([]int, len(sel))
	for k, s := range sel {
		rows[k] = pos[s]
	}
	return rows, nil
}

func uniform(t *table.Table, target int) Result {
	tab, rows := Simple(t, target)
	m := Uniform
	if len(rows) == t.Len() {
		m = None
	}
	return Result{Table: tab, Rows: rows, Method: m}
}

// Downsample picks the sampler by x type: LTTB for a numeric x, Simple
// otherwise.
func Downsample(t *table.Table, x string, ys []string, target int, logger Logger) Result {
	if t != nil && frame.IsNumeric(t, x) {
		return Sample(t, x, ys, target, logger)
	}
	return uniform(orEmpty(t), target)
}

func orEmpty(t *table.Table) *table.Table {
	if t == nil {
		return new(table.Table)
	}
	return t
}

func logfOf(l Logger) func(string, ...any) {
	if l == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Printf
}
