// Package datasource loads a configured source into a table.
package datasource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aclements/go-gg/table"
	"golang.org/x/sync/errgroup"

	"plotprep/internal/config"
	"plotprep/internal/frame"
	"plotprep/internal/metrics"
	csvparser "plotprep/internal/parser/csv"
	htmlparser "plotprep/internal/parser/html"
	jsonparser "plotprep/internal/parser/json"
	xlsxparser "plotprep/internal/parser/xlsx"
	"plotprep/internal/storage"
	"plotprep/internal/transformer"
)

// ErrUnsupportedKind is returned for a source kind no loader handles.
var ErrUnsupportedKind = errors.New("datasource: unsupported kind")

// maxLoggedErrors caps per-line parse error logging for one load.
const maxLoggedErrors = 20

// Logger is the minimal logging interface used by the loader.
type Logger interface {
	Printf(format string, v ...any)
}

// Load reads spec into a table. File kinds stream through the matching
// parser; SQL kinds run spec.Query against a storage backend, which must
// have been registered by importing its package.
//
// Path "-" reads standard input.
func Load(ctx context.Context, spec config.SourceSpec, logger Logger) (*table.Table, error) {
	start := time.Now()
	kind := Kind(spec)
	logf := logfOf(logger)

	var (
		t   *table.Table
		err error
	)
	if config.IsSQLKind(kind) {
		t, err = loadSQL(ctx, kind, spec)
	} else {
		var rc io.ReadCloser
		rc, err = openPath(spec.Path)
		if err == nil {
			t, err = Read(ctx, kind, rc, spec.Options, logger)
		}
	}
	if err != nil {
		metrics.RecordStage("load", "error", time.Since(start))
		return nil, err
	}
	logf("stage=load kind=%s source=%q rows=%d columns=%d duration=%s",
		kind, describe(spec), t.Len(), len(t.Columns()), time.Since(start).Truncate(time.Millisecond))
	metrics.RecordStage("load", "ok", time.Since(start))
	metrics.AddRows("loaded", t.Len())
	return t, nil
}

// Kind returns spec.Kind, or the kind implied by the path's extension.
func Kind(spec config.SourceSpec) string {
	if k := strings.ToLower(strings.TrimSpace(spec.Kind)); k != "" {
		return k
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(spec.Path)), ".")
}

// Read parses r as kind and closes it. Rows that fail to parse are
// skipped and logged.
func Read(ctx context.Context, kind string, r io.ReadCloser, opt config.Options, logger Logger) (*table.Table, error) {
	logf := logfOf(logger)
	var rejected int
	onErr := func(line int, err error) {
		rejected++
		if rejected <= maxLoggedErrors {
			logf("parse_error kind=%s line=%d err=%v", kind, line, err)
		}
	}

	var (
		mu sync.Mutex
		c  *frame.Collector
	)
	onHeader := func(cols []string) {
		mu.Lock()
		c = frame.NewCollector(cols)
		mu.Unlock()
	}
	onColumns := func(cols []string) {
		mu.Lock()
		defer mu.Unlock()
		if c == nil {
			c = frame.NewCollector(cols)
			return
		}
		c.Extend(cols)
	}

	var produce func(ctx context.Context, out chan<- *transformer.Row) error
	switch kind {
	case "csv", "tsv", "txt":
		if kind == "tsv" && opt.String("comma", "") == "" {
			opt = opt.With("comma", "tab")
		}
		var src io.ReadCloser = r
		if kind == "txt" && opt.String("comma", "") == "" {
			br := bufio.NewReader(r)
			opt = opt.With("comma", string(SniffDelimiter(br)))
			src = readCloser{br, r}
		}
		produce = func(ctx context.Context, out chan<- *transformer.Row) error {
			return csvparser.StreamCSVRows(ctx, src, opt, onHeader, out, onErr)
		}
	case "json", "ndjson", "jsonl":
		produce = func(ctx context.Context, out chan<- *transformer.Row) error {
			defer r.Close()
			return jsonparser.StreamJSONRows(ctx, r, opt, onColumns, out, onErr)
		}
	case "html", "htm":
		produce = func(ctx context.Context, out chan<- *transformer.Row) error {
			defer r.Close()
			return htmlparser.StreamHTMLRows(ctx, r, opt, onHeader, out, onErr)
		}
	case "xlsx":
		produce = func(ctx context.Context, out chan<- *transformer.Row) error {
			defer r.Close()
			return xlsxparser.StreamXLSXRows(ctx, r, opt, onHeader, out)
		}
	default:
		_ = r.Close()
		return nil, fmt.Errorf("%w %q", ErrUnsupportedKind, kind)
	}

	// Header callbacks run on the producer goroutine before the first row
	// that needs them is sent.
	out := make(chan *transformer.Row, 256)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(out)
		return produce(gctx, out)
	})
	g.Go(func() error {
		for row := range out {
			mu.Lock()
			if c != nil {
				c.Add(row.V)
			}
			mu.Unlock()
			row.Free()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("datasource: read %s: %w", kind, err)
	}
	if rejected > 0 {
		logf("parse_errors kind=%s rejected=%d", kind, rejected)
		metrics.AddRows("rejected", rejected)
	}
	if c == nil {
		return new(table.Table), nil
	}
	return c.Table(), nil
}

// FromRows builds a table from query results.
func FromRows(columns []string, rows [][]any) *table.Table {
	c := frame.NewCollector(csvparser.HeaderNames(columns, nil, false))
	for _, r := range rows {
		c.Add(r)
	}
	return c.Table()
}

func loadSQL(ctx context.Context, kind string, spec config.SourceSpec) (*table.Table, error) {
	if strings.TrimSpace(spec.Query) == "" {
		return nil, fmt.Errorf("datasource: %s source needs a query", kind)
	}
	dsn := spec.DSN
	if dsn == "" && kind == "sqlite" {
		dsn = spec.Path
	}
	repo, err := storage.New(ctx, storage.Config{Kind: kind, DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("datasource: open %s: %w", kind, err)
	}
	defer repo.Close()

	cols, rows, err := repo.Query(ctx, spec.Query)
	if err != nil {
		return nil, err
	}
	return FromRows(cols, rows), nil
}

// SniffDelimiter peeks at the first line and picks the most frequent of
// tab, semicolon, pipe and comma. It defaults to comma.
func SniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{'\t', ';', '|', ','} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

type readCloser struct {
	io.Reader
	io.Closer
}

func openPath(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	if path == "" {
		return nil, fmt.Errorf("datasource: missing path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datasource: %w", err)
	}
	return f, nil
}

func describe(spec config.SourceSpec) string {
	if spec.Path != "" {
		return spec.Path
	}
	if spec.Query != "" {
		return spec.Query
	}
	return spec.Kind
}

func logfOf(l Logger) func(string, ...any) {
	if l == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Printf
}
