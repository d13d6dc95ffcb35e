// Package export writes prepared chart data to CSV, JSON or a SQL table.
// Every layout starts with row_id, the source row of each point.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"plotprep/internal/frame"
	"plotprep/internal/prepare"
	"plotprep/internal/storage"
)

// RowIDColumn names the source-row column in every export.
const RowIDColumn = "row_id"

// Columns returns the export header: row_id, x, then the y columns.
func Columns(p prepare.Prepared) []string {
	if p.Table == nil {
		return []string{RowIDColumn}
	}
	return append([]string{RowIDColumn}, p.Table.Columns()...)
}

// Rows returns the export records. NaN becomes nil.
func Rows(p prepare.Prepared) [][]any {
	if p.Table == nil {
		return nil
	}
	cols := p.Table.Columns()
	out := make([][]any, p.Len())
	for i := range out {
		out[i] = make([]any, 0, len(cols)+1)
		out[i] = append(out[i], int64(p.RowIDs[i]))
	}
	for _, c := range cols {
		switch v := p.Table.Column(c).(type) {
		case []float64:
			for i := range out {
				if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
					out[i] = append(out[i], nil)
				} else {
					out[i] = append(out[i], v[i])
				}
			}
		case []string:
			for i := range out {
				out[i] = append(out[i], v[i])
			}
		default:
			for i := range out {
				out[i] = append(out[i], nil)
			}
		}
	}
	return out
}

// WriteCSV writes a header and one record per prepared row.
func WriteCSV(w io.Writer, p prepare.Prepared) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(p)); err != nil {
		return err
	}
	rec := make([]string, 0, len(Columns(p)))
	for _, r := range Rows(p) {
		rec = rec[:0]
		for _, v := range r {
			switch x := v.(type) {
			case int64:
				rec = append(rec, strconv.FormatInt(x, 10))
			default:
				rec = append(rec, frame.FormatValue(x))
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Document is the JSON export layout.
type Document struct {
	X           string              `json:"x"`
	Axes        map[string][]string `json:"axes"`
	Downsampled bool                `json:"downsampled"`
	Method      string              `json:"method"`
	Columns     []string            `json:"columns"`
	Rows        [][]any             `json:"rows"`
	Warnings    []string            `json:"warnings,omitempty"`
}

// NewDocument builds the JSON layout for p.
func NewDocument(p prepare.Prepared) Document {
	axes := make(map[string][]string, len(p.Axes))
	for role, cols := range p.Axes {
		axes[string(role)] = cols
	}
	rows := Rows(p)
	if rows == nil {
		rows = [][]any{}
	}
	return Document{
		X:           p.X,
		Axes:        axes,
		Downsampled: p.Downsampled,
		Method:      string(p.Method),
		Columns:     Columns(p),
		Rows:        rows,
		Warnings:    p.Warnings,
	}
}

// WriteJSON writes the Document for p.
func WriteJSON(w io.Writer, p prepare.Prepared) error {
	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(p))
}

// Save writes p into table, creating it when missing. With replace set
// the table is emptied first.
func Save(ctx context.Context, repo storage.Repository, table string, p prepare.Prepared, replace bool) (int64, error) {
	cols := Columns(p)
	specs := make([]storage.Column, len(cols))
	specs[0] = storage.Column{Name: RowIDColumn, Type: storage.Integer, Key: true}
	for i, c := range cols[1:] {
		typ := storage.Text
		if frame.IsNumeric(p.Table, c) {
			typ = storage.Real
		}
		specs[i+1] = storage.Column{Name: c, Type: typ}
	}
	if err := repo.EnsureTable(ctx, table, specs); err != nil {
		return 0, err
	}
	if replace {
		if err := repo.Truncate(ctx, table); err != nil {
			return 0, fmt.Errorf("export: truncate %s: %w", table, err)
		}
	}
	return repo.InsertRows(ctx, table, cols, Rows(p))
}

// WriteFile writes p as format ("csv" or "json") into dir/<name>.<format>
// and returns the path.
func WriteFile(dir, name, format string, p prepare.Prepared) (string, error) {
	format = strings.ToLower(format)
	var write func(io.Writer, prepare.Prepared) error
	switch format {
	case "csv":
		write = WriteCSV
	case "json":
		write = WriteJSON
	default:
		return "", fmt.Errorf("export: unsupported format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, Slug(name)+"."+format)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := write(f, p); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// Slug turns a chart title into a file or table name.
func Slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "chart"
	}
	return out
}
