package chart

import (
	"fmt"
	"math"

	"plotprep/internal/frame"
	"plotprep/internal/prepare"
)

// Series is one plotted line or point set.
//
// X holds numeric x values; for a text x column X is the point's position
// and Labels holds the text. RowIDs and Tooltips are aligned with X.
type Series struct {
	Name     string
	Axis     prepare.Role
	X        []float64
	Labels   []string
	Y        []float64
	RowIDs   []int
	Tooltips []string
}

// Len is the number of points.
func (s Series) Len() int { return len(s.Y) }

// BuildSeries makes one series per resolved y column, Y1 first. Points
// with a NaN y are left out; each kept point's tooltip names its source
// row.
func BuildSeries(p prepare.Prepared, cfg Config) []Series {
	if p.Table == nil || p.Len() == 0 {
		return nil
	}
	xs, numericX := frame.Floats(p.Table, p.X)
	var labels []string
	if !numericX {
		labels = make([]string, p.Len())
		for i := range labels {
			labels[i] = frame.FormatValue(cellAt(p.Table.Column(p.X), i))
		}
	}

	var out []Series
	for _, role := range prepare.Roles {
		for _, col := range p.Axes[role] {
			ys, ok := frame.Floats(p.Table, col)
			if !ok {
				continue
			}
			s := Series{Name: col, Axis: role}
			for i, y := range ys {
				if math.IsNaN(y) {
					continue
				}
				if numericX {
					if math.IsNaN(xs[i]) {
						continue
					}
					s.X = append(s.X, xs[i])
				} else {
					s.X = append(s.X, float64(i))
					s.Labels = append(s.Labels, labels[i])
				}
				s.Y = append(s.Y, y)
				s.RowIDs = append(s.RowIDs, p.RowIDs[i])
				s.Tooltips = append(s.Tooltips, fmt.Sprintf("row %d, %s = %s", p.RowIDs[i], col, cfg.FormatHover(y)))
			}
			out = append(out, s)
		}
	}
	return out
}

// AxisTitles returns the first Y1 and first Y2 series names.
func AxisTitles(series []Series) (y1, y2 string) {
	for _, s := range series {
		switch {
		case s.Axis == prepare.Y1 && y1 == "":
			y1 = s.Name
		case s.Axis == prepare.Y2 && y2 == "":
			y2 = s.Name
		}
	}
	return y1, y2
}

func hasPoints(series []Series) bool {
	for _, s := range series {
		if s.Len() > 0 {
			return true
		}
	}
	return false
}

func cellAt(col any, i int) any {
	switch v := col.(type) {
	case []string:
		return v[i]
	case []float64:
		return v[i]
	}
	return nil
}
