// Package csv streams delimited text files into pooled rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"plotprep/internal/config"
	"plotprep/internal/transformer"
)

// StreamCSVRows reads delimited text and sends one pooled *transformer.Row
// per record on out. onHeader is called once, before the first row, with
// the resolved column names.
//
// Options:
//   - comma (default ','), comment, lazy_quotes
//   - has_header (default true); without a header columns are col_1..col_n
//     sized by the first record
//   - header_map: source header -> column name
//   - normalize_header: lower-case and replace spaces with underscores
//   - trim_space (default true)
//   - skip_rows: lines to skip before the header
//   - encoding: IANA charset name of the input, e.g. "windows-1250"
//
// Duplicate names get a numeric suffix ("v", "v_2"). Empty fields become
// nil. Malformed records are reported through onErr and skipped.
//
// On ctx cancellation the in-flight row is dropped, not re-pooled.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	onHeader func(columns []string),
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()
	if onHeader == nil {
		onHeader = func([]string) {}
	}

	var in io.Reader = src
	if enc := strings.TrimSpace(opt.String("encoding", "")); enc != "" && !strings.EqualFold(enc, "utf-8") && !strings.EqualFold(enc, "utf8") {
		e, err := ianaindex.IANA.Encoding(enc)
		if err != nil || e == nil {
			return fmt.Errorf("csv: unsupported encoding %q", enc)
		}
		in = transform.NewReader(src, e.NewDecoder())
	}

	cr := csv.NewReader(in)
	cr.Comma = opt.Rune("comma", ',')
	cr.Comment = opt.Rune("comment", 0)
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	trim := opt.Bool("trim_space", true)
	var line int
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	for skip := opt.Int("skip_rows", 0); skip > 0; skip-- {
		if _, err := readRec(); err != nil {
			if err == io.EOF {
				onHeader(nil)
				return nil
			}
			return fmt.Errorf("csv: skip line %d: %w", line, err)
		}
	}

	var pending []string
	var columns []string
	if opt.Bool("has_header", true) {
		hdr, err := readRec()
		if err == io.EOF {
			onHeader(nil)
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return err
		}
		columns = HeaderNames(hdr, opt.StringMap("header_map"), opt.Bool("normalize_header", false))
	} else {
		first, err := readRec()
		if err == io.EOF {
			onHeader(nil)
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv: first record: %w", err)
		}
		columns = make([]string, len(first))
		for i := range columns {
			columns[i] = "col_" + strconv.Itoa(i+1)
		}
		pending = append([]string(nil), first...)
	}
	onHeader(columns)

	emit := func(rec []string) error {
		row := transformer.GetRow(len(columns))
		row.Line = line
		for i := range columns {
			if i >= len(rec) {
				continue
			}
			v := rec[i]
			if trim {
				v = transformer.TrimCell(v)
			}
			if v != "" {
				row.V[i] = v
			}
		}
		select {
		case out <- row:
			return nil
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}

	if pending != nil {
		if err := emit(pending); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}

// HeaderNames cleans a header record: trims, strips a UTF-8 BOM, applies
// header_map, optionally normalizes, fills blanks as col_N and makes names
// unique.
func HeaderNames(hdr []string, headerMap map[string]string, normalize bool) []string {
	out := make([]string, len(hdr))
	seen := make(map[string]int, len(hdr))
	for i, h := range hdr {
		h = transformer.TrimCell(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if mapped, ok := headerMap[h]; ok {
			h = mapped
		} else if normalize {
			h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
		}
		if h == "" {
			h = "col_" + strconv.Itoa(i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = h + "_" + strconv.Itoa(n+1)
		}
		seen[h]++
		out[i] = h
	}
	return out
}
