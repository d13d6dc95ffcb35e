// Package probe summarizes a loaded table column by column: what kind of
// data each column holds, how many list channels it carries, how sparse it
// is and how many distinct values it has.
//
// The report is meant for choosing chart axes before writing a chart file.
package probe

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aclements/go-gg/table"
	"github.com/aclements/go-moremath/stats"
	"github.com/dustin/go-humanize"

	"plotprep/internal/listcol"
)

// DefaultDistinctCap bounds distinct-value tracking per column.
const DefaultDistinctCap = 10000

// Kind is the coarse type of a column.
type Kind string

const (
	Numeric Kind = "numeric"
	Text    Kind = "text"
	List    Kind = "list"
)

// Column is the summary of one column.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	// Channels is the detected list width; zero unless Kind is List.
	Channels int `json:"channels,omitempty"`
	// Present counts rows with a value; Missing the rest.
	Present  int  `json:"present"`
	Missing  int  `json:"missing"`
	Distinct int  `json:"distinct"`
	Capped   bool `json:"capped,omitempty"`
	// Min and Max are only set for numeric columns with at least one value.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Ratio is Distinct over Present, or 0 for an empty column.
func (c Column) Ratio() float64 {
	if c.Present == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Present)
}

// Report is a whole-table summary. Columns keep table order.
type Report struct {
	Rows    int      `json:"rows"`
	Columns []Column `json:"columns"`
}

// Options configures Run.
type Options struct {
	Detector    listcol.Detector
	DistinctCap int
}

// Run builds the report for t. A nil table gives an empty report.
func Run(t *table.Table, opts Options) Report {
	if t == nil {
		return Report{Columns: []Column{}}
	}
	limit := opts.DistinctCap
	if limit <= 0 {
		limit = DefaultDistinctCap
	}
	rep := Report{Rows: t.Len(), Columns: make([]Column, 0, len(t.Columns()))}
	for _, name := range t.Columns() {
		var c Column
		switch v := t.Column(name).(type) {
		case []float64:
			c = numericColumn(v, limit)
		case []string:
			c = textColumn(v, limit, opts.Detector)
		default:
			c = Column{Kind: Text, Missing: t.Len()}
		}
		c.Name = name
		rep.Columns = append(rep.Columns, c)
	}
	return rep
}

func numericColumn(vs []float64, limit int) Column {
	c := Column{Kind: Numeric}
	seen := make(map[float64]struct{})
	present := make([]float64, 0, len(vs))
	for _, v := range vs {
		if math.IsNaN(v) {
			c.Missing++
			continue
		}
		present = append(present, v)
		if c.Capped {
			continue
		}
		seen[v] = struct{}{}
		if len(seen) >= limit {
			c.Capped = true
		}
	}
	c.Present = len(present)
	c.Distinct = len(seen)
	if len(present) > 0 {
		lo, hi := stats.Bounds(present)
		c.Min, c.Max = &lo, &hi
	}
	return c
}

func textColumn(vs []string, limit int, d listcol.Detector) Column {
	c := Column{Kind: Text}
	if info, ok := d.DetectColumn(vs); ok {
		c.Kind, c.Channels = List, info.Channels
	}
	seen := make(map[string]struct{})
	for _, s := range vs {
		s = strings.TrimSpace(s)
		if listcol.ParseCell(s).Kind == listcol.Missing {
			c.Missing++
			continue
		}
		c.Present++
		if c.Capped {
			continue
		}
		seen[s] = struct{}{}
		if len(seen) >= limit {
			c.Capped = true
		}
	}
	c.Distinct = len(seen)
	return c
}

// ListColumns returns the names of the detected list columns.
func (r Report) ListColumns() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Kind == List {
			out = append(out, c.Name)
		}
	}
	return out
}

// Format renders the report as tab-separated text. With byUniqueness the
// columns are ordered by ascending distinct ratio, which puts category-like
// columns first.
func (r Report) Format(byUniqueness bool) string {
	if r.Rows == 0 {
		return "probe: no rows"
	}
	cols := append([]Column(nil), r.Columns...)
	if byUniqueness {
		sort.SliceStable(cols, func(i, j int) bool {
			if cols[i].Ratio() == cols[j].Ratio() {
				return cols[i].Name < cols[j].Name
			}
			return cols[i].Ratio() < cols[j].Ratio()
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "column report:\trows=%s\tcolumns=%d\n", humanize.Comma(int64(r.Rows)), len(r.Columns))
	fmt.Fprintf(&b, "%-15s\t%-7s\t%-8s\t%-7s\t%-7s\tratio\trange\n", "col", "kind", "channels", "missing", "unique")
	for _, c := range cols {
		ch := "-"
		if c.Kind == List {
			ch = fmt.Sprint(c.Channels)
		}
		uniq := humanize.Comma(int64(c.Distinct))
		if c.Capped {
			uniq += "+"
		}
		rng := "-"
		if c.Min != nil && c.Max != nil {
			rng = humanize.FtoaWithDigits(*c.Min, 4) + ".." + humanize.FtoaWithDigits(*c.Max, 4)
		}
		fmt.Fprintf(&b, "%-15s\t%-7s\t%-8s\t%-7s\t%-7s\t%.1f%%\t%s\n",
			c.Name, c.Kind, ch, humanize.Comma(int64(c.Missing)), uniq, c.Ratio()*100, rng)
	}
	return strings.TrimRight(b.String(), "\n")
}
