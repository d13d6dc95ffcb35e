// Package html reads tabular data out of HTML documents with goquery.
//
// Two modes:
//   - table mode (default): one <table> becomes the frame; headers come
//     from <th> cells of the first row that has any, else col_N
//   - record mode (record_selector set): every matched element is a row
//     and each field is a selector relative to it
package html

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	gojson "github.com/goccy/go-json"

	"plotprep/internal/config"
	"plotprep/internal/parser/csv"
	"plotprep/internal/transformer"
)

// Field is one record-mode column.
type Field struct {
	Name     string
	Selector string
	Attr     string         // read this attribute instead of the text
	Match    *regexp.Regexp // group 1 (or the whole match) is kept
	All      bool           // every match, kept as a list cell
}

// StreamHTMLRows parses the document in r and sends one pooled row per
// table row or record on out.
//
// Options:
//   - selector (default "table"), table_index (default 0)
//   - record_selector, fields: [{name, selector, attr, match, all}]
//   - header_map, normalize_header as for CSV
func StreamHTMLRows(
	ctx context.Context,
	r io.Reader,
	opt config.Options,
	onHeader func(columns []string),
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	if onHeader == nil {
		onHeader = func([]string) {}
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("html: parse: %w", err)
	}

	var columns []string
	var rows [][]string
	if rs := strings.TrimSpace(opt.String("record_selector", "")); rs != "" {
		fields, err := ParseFields(opt["fields"])
		if err != nil {
			return err
		}
		columns, rows = Records(doc.Selection, rs, fields)
	} else {
		sel := doc.Find(opt.String("selector", "table"))
		idx := opt.Int("table_index", 0)
		if idx < 0 || idx >= sel.Length() {
			return fmt.Errorf("html: no table %d matches %q (found %d)", idx, opt.String("selector", "table"), sel.Length())
		}
		columns, rows = Table(sel.Eq(idx))
	}
	columns = csv.HeaderNames(columns, opt.StringMap("header_map"), opt.Bool("normalize_header", false))
	onHeader(columns)

	for i, rec := range rows {
		row := transformer.GetRow(len(columns))
		row.Line = i + 1
		for j := range columns {
			if j < len(rec) && rec[j] != "" {
				row.V[j] = rec[j]
			}
		}
		if len(rec) > len(columns) && onErr != nil {
			onErr(i+1, fmt.Errorf("row has %d cells, table has %d columns", len(rec), len(columns)))
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

// Table extracts a <table>. colspan is honored by repeating the cell.
func Table(tbl *goquery.Selection) (columns []string, rows [][]string) {
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) != tbl.Get(0) {
			return // nested table
		}
		var cells []string
		header := tr.Find("th").Length() > 0 && tr.Find("td").Length() == 0
		tr.Children().Filter("td, th").Each(func(_ int, c *goquery.Selection) {
			v := cellText(c)
			span := 1
			if s, ok := c.Attr("colspan"); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n > 1 {
					span = n
				}
			}
			for k := 0; k < span; k++ {
				cells = append(cells, v)
			}
		})
		if len(cells) == 0 {
			return
		}
		if header && columns == nil && len(rows) == 0 {
			columns = cells
			return
		}
		rows = append(rows, cells)
	})
	if columns == nil {
		n := 0
		for _, r := range rows {
			n = max(n, len(r))
		}
		columns = make([]string, n)
	}
	return columns, rows
}

// Records extracts one row per element matched by recordSelector.
// Elements where no field matched are skipped.
func Records(root *goquery.Selection, recordSelector string, fields []Field) (columns []string, rows [][]string) {
	columns = make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	root.Find(recordSelector).Each(func(_ int, rec *goquery.Selection) {
		cells := make([]string, len(fields))
		hit := false
		for i, f := range fields {
			if f.All {
				var vals []string
				rec.Find(f.Selector).Each(func(_ int, s *goquery.Selection) {
					if v := f.extract(s); v != "" {
						vals = append(vals, v)
					}
				})
				if len(vals) > 0 {
					b, _ := gojson.Marshal(vals)
					cells[i] = string(b)
				}
			} else if s := rec.Find(f.Selector).First(); s.Length() > 0 {
				cells[i] = f.extract(s)
			}
			hit = hit || cells[i] != ""
		}
		if hit {
			rows = append(rows, cells)
		}
	})
	return columns, rows
}

func (f Field) extract(s *goquery.Selection) string {
	var v string
	if f.Attr != "" {
		v, _ = s.Attr(f.Attr)
		v = strings.TrimSpace(v)
	} else {
		v = cellText(s)
	}
	if v == "" || f.Match == nil {
		return v
	}
	sm := f.Match.FindStringSubmatch(v)
	switch {
	case len(sm) == 0:
		return ""
	case len(sm) > 1:
		return sm[1]
	}
	return sm[0]
}

// ParseFields decodes the record-mode "fields" option.
func ParseFields(raw any) ([]Field, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("html: record_selector needs a non-empty fields list")
	}
	fields := make([]Field, 0, len(list))
	for i, it := range list {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("html: fields[%d] is not a mapping", i)
		}
		o := config.Options(m)
		f := Field{
			Name:     o.String("name", ""),
			Selector: o.String("selector", ""),
			Attr:     o.String("attr", ""),
			All:      o.Bool("all", false),
		}
		if f.Selector == "" {
			return nil, fmt.Errorf("html: fields[%d] has no selector", i)
		}
		if f.Name == "" {
			f.Name = f.Selector
		}
		if p := o.String("match", ""); p != "" {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("html: fields[%d] match: %w", i, err)
			}
			f.Match = re
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
