// Package listcol finds table columns whose cells are textual numeric
// arrays ("[0.1, 0.2, 0.3]") and unpacks them into numeric channels.
//
// Pipeline:
//   - ParseCell classifies one cell as missing, scalar, list or unparseable
//   - Detect samples the first non-missing cells of every text column
//   - Expander parses a whole column once into a dense Matrix and serves
//     channel subsets from it
//
// Cell grammar:
// Lists are JSON arrays or Python-style literals (single quotes, None,
// True/False, nan/inf). Elements that are not numbers become NaN, numbers
// too large for a float64 become ±Inf, and a syntax error anywhere makes
// the whole cell unparseable. IsMissing is the single source of truth for
// missing tokens; internal/frame uses it when typing ingested columns.
//
// NOTE ABOUT DETECTION:
// Detect looks at DefaultSampleSize cells per column unless FullScan is set.
// A sampled scan can undercount channels when wider lists appear later; the
// matrix built by the Expander is always authoritative.
//
// NOTE ABOUT MEMORY:
// A matrix costs Rows x Cols x 8 bytes. The Expander refuses columns over
// its byte budget with ErrOverBudget instead of growing without bound, and
// caches matrices per (source, column) until the source is invalidated.
package listcol

import (
	"github.com/aclements/go-gg/table"
)

// DefaultSampleSize is the number of non-missing cells Detect inspects per
// column.
const DefaultSampleSize = 5

// Info describes one detected list column.
type Info struct {
	// Channels is the longest list seen while detecting. With the default
	// sampled scan it can undercount when longer lists appear later in
	// the column; Matrix.Cols is always authoritative.
	Channels int
}

// Detector configures list-column detection. The zero value samples
// DefaultSampleSize cells per column.
type Detector struct {
	SampleSize int
	// FullScan counts channels over every list cell instead of stopping
	// after SampleSize non-missing cells. Classification still depends only
	// on the first non-missing cell.
	FullScan bool
}

// Detect runs the default Detector over t.
func Detect(t *table.Table) map[string]Info {
	return Detector{}.Detect(t)
}

// Detect reports every list column of t with its channel count.
//
// A column is a list column when its first non-missing cell parses as a
// list literal. Numeric columns never are. Columns whose sampled lists are
// all empty are omitted, as are non-list columns. Detect only reads t.
func (d Detector) Detect(t *table.Table) map[string]Info {
	out := make(map[string]Info)
	if t == nil {
		return out
	}
	for _, name := range t.Columns() {
		cells, ok := t.Column(name).([]string)
		if !ok {
			continue
		}
		if n, ok := d.channels(cells); ok && n > 0 {
			out[name] = Info{Channels: n}
		}
	}
	return out
}

// DetectColumn classifies a single text column.
func (d Detector) DetectColumn(cells []string) (Info, bool) {
	n, ok := d.channels(cells)
	if !ok || n == 0 {
		return Info{}, false
	}
	return Info{Channels: n}, true
}

func (d Detector) channels(cells []string) (int, bool) {
	limit := d.SampleSize
	if limit <= 0 {
		limit = DefaultSampleSize
	}

	sampled, max := 0, 0
	for _, s := range cells {
		c := ParseCell(s)
		if c.Kind == Missing {
			continue
		}
		if sampled == 0 && c.Kind != List {
			return 0, false
		}
		sampled++
		if c.Kind == List && len(c.Values) > max {
			max = len(c.Values)
		}
		if !d.FullScan && sampled >= limit {
			break
		}
	}
	return max, sampled > 0
}
