// Package xlsx streams worksheet rows with excelize.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"plotprep/internal/config"
	"plotprep/internal/parser/csv"
	"plotprep/internal/transformer"
)

// StreamXLSXRows reads one worksheet of the workbook in r and sends one
// pooled row per spreadsheet row on out. Cells are read as formatted text;
// numeric conversion happens when the table is built.
//
// Options: sheet (default: first sheet), skip_rows, has_header (default
// true), header_map, normalize_header. Trailing empty rows are dropped.
func StreamXLSXRows(
	ctx context.Context,
	r io.Reader,
	opt config.Options,
	onHeader func(columns []string),
	out chan<- *transformer.Row,
) error {
	if onHeader == nil {
		onHeader = func([]string) {}
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()

	sheet := opt.String("sheet", "")
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return fmt.Errorf("xlsx: workbook has no sheets")
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return fmt.Errorf("xlsx: sheet %q not found", sheet)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("xlsx: rows of %q: %w", sheet, err)
	}
	defer rows.Close()

	var (
		line    int
		columns []string
		pending [][]string
	)
	skip := opt.Int("skip_rows", 0)
	hasHeader := opt.Bool("has_header", true)
	for rows.Next() {
		line++
		if line <= skip {
			continue
		}
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("xlsx: %s row %d: %w", sheet, line, err)
		}
		if columns == nil && hasHeader {
			columns = csv.HeaderNames(cells, opt.StringMap("header_map"), opt.Bool("normalize_header", false))
			continue
		}
		pending = append(pending, append([]string(nil), cells...))
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("xlsx: %s: %w", sheet, err)
	}

	for len(pending) > 0 && len(pending[len(pending)-1]) == 0 {
		pending = pending[:len(pending)-1]
	}
	if columns == nil {
		n := 0
		for _, p := range pending {
			n = max(n, len(p))
		}
		columns = make([]string, n)
		for i := range columns {
			columns[i] = "col_" + strconv.Itoa(i+1)
		}
	}
	onHeader(columns)

	for i, cells := range pending {
		row := transformer.GetRow(len(columns))
		row.Line = skip + i + 1
		if hasHeader {
			row.Line++
		}
		for j := range columns {
			if j < len(cells) {
				if v := transformer.TrimCell(cells[j]); v != "" {
					row.V[j] = v
				}
			}
		}
		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
	return nil
}
