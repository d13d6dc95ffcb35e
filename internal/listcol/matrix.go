package listcol

import (
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// ErrOverBudget is returned when a column's matrix would exceed the
// expander's byte budget.
var ErrOverBudget = errors.New("listcol: matrix over byte budget")

// Matrix is a dense row-major Rows x Cols array of channel values, one row
// per source row. Missing or unparseable entries are NaN, and so are the
// trailing channels of rows whose list is shorter than Cols.
//
// A Matrix is shared through the expander cache; treat it as read-only.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

// At returns channel ch of row row. Like a slice index it panics when
// either is out of range; use Channel for tolerant lookups.
func (m *Matrix) At(row, ch int) float64 { return m.Data[row*m.Cols+ch] }

// Channel copies channel ch of the given rows. A nil rows means every row.
// Row ids outside [0, Rows) yield NaN.
func (m *Matrix) Channel(ch int, rows []int) []float64 {
	if rows == nil {
		out := make([]float64, m.Rows)
		for r := range out {
			out[r] = m.Data[r*m.Cols+ch]
		}
		return out
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		if r < 0 || r >= m.Rows {
			out[i] = math.NaN()
			continue
		}
		out[i] = m.Data[r*m.Cols+ch]
	}
	return out
}

// Bytes is the matrix payload size.
func (m *Matrix) Bytes() int64 { return matrixBytes(m.Rows, m.Cols) }

func matrixBytes(rows, cols int) int64 { return int64(rows) * int64(cols) * 8 }

// BuildMatrix parses every cell and lays the lists out left-aligned in a
// NaN-filled matrix as wide as the longest list. Non-list cells become an
// all-NaN row. budget <= 0 disables the size check.
func BuildMatrix(cells []string, budget int64) (*Matrix, error) {
	parsed := make([][]float64, len(cells))
	width := 0
	for i, s := range cells {
		c := ParseCell(s)
		switch c.Kind {
		case List:
			parsed[i] = c.Values
			if len(c.Values) > width {
				width = len(c.Values)
			}
		case Missing, Scalar, Unparseable:
			// all-NaN row
		}
	}

	if need := matrixBytes(len(cells), width); budget > 0 && need > budget {
		return nil, fmt.Errorf("%w: %d rows x %d channels needs %s, budget %s",
			ErrOverBudget, len(cells), width, humanize.IBytes(uint64(need)), humanize.IBytes(uint64(budget)))
	}

	m := &Matrix{Rows: len(cells), Cols: width, Data: make([]float64, len(cells)*width)}
	nan := math.NaN()
	for r, vals := range parsed {
		row := m.Data[r*width : (r+1)*width]
		n := copy(row, vals)
		for k := n; k < width; k++ {
			row[k] = nan
		}
	}
	return m, nil
}
