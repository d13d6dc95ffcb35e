package frame

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aclements/go-gg/table"

	"plotprep/internal/listcol"
)

// Collector accumulates positional rows and builds a typed table.
//
// A column becomes []float64 when every non-missing value is a number or a
// string that parses as one; otherwise it stays []string. nil is missing,
// and so is any string listcol.IsMissing accepts ("", "NA", "null", ...).
// Out-of-range numbers become ±Inf.
type Collector struct {
	names []string
	cols  [][]any
}

// NewCollector returns a collector for the given column names.
func NewCollector(names []string) *Collector {
	c := &Collector{names: append([]string(nil), names...), cols: make([][]any, len(names))}
	return c
}

// Columns returns the collector's column names.
func (c *Collector) Columns() []string { return c.names }

// Extend appends the names not yet known, backfilling earlier rows with
// missing values. Existing columns keep their positions.
func (c *Collector) Extend(names []string) {
	n := c.Len()
	for _, name := range names {
		if indexOf(c.names, name) >= 0 {
			continue
		}
		c.names = append(c.names, name)
		c.cols = append(c.cols, make([]any, n))
	}
}

// Len is the number of rows added so far.
func (c *Collector) Len() int {
	if len(c.cols) == 0 {
		return 0
	}
	return len(c.cols[0])
}

// Add appends one row. Short rows are padded with missing values, extra
// values are ignored. Values are copied, so v may be reused by the caller.
func (c *Collector) Add(v []any) {
	for i := range c.cols {
		var x any
		if i < len(v) {
			x = v[i]
		}
		if b, ok := x.([]byte); ok {
			x = string(b)
		}
		c.cols[i] = append(c.cols[i], x)
	}
}

// Table builds the typed table.
func (c *Collector) Table() *table.Table {
	if len(c.names) == 0 {
		return new(table.Table)
	}
	b := new(table.Builder)
	for i, name := range c.names {
		if fs, ok := asFloats(c.cols[i]); ok {
			b.Add(name, fs)
			continue
		}
		b.Add(name, asStrings(c.cols[i]))
	}
	return b.Done()
}

func asFloats(vals []any) ([]float64, bool) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := toFloat(v)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		switch c := listcol.ParseCell(x); c.Kind {
		case listcol.Missing:
			return math.NaN(), true
		case listcol.Scalar:
			return c.Value, true
		}
		return 0, false
	}
	return 0, false
}

func asStrings(vals []any) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = FormatValue(v)
	}
	return out
}

// FormatValue renders a cell for a text column or a tooltip.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
