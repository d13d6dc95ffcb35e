// Command plotprep renders the charts described in a chart file.
//
// It loads the file's source once, detects list columns, prepares every
// chart (range filter, list expansion, downsampling), renders it as SVG or
// PNG, and optionally exports the prepared rows as CSV, JSON or a SQL
// table.
//
// Usage:
//
//	plotprep -config charts.yaml [-source data.csv] [-out dir] [-format png]
//
// Flags override the chart file. Data problems (unknown columns, empty
// selections, ranges that match nothing) are printed as warnings and the
// affected chart is skipped or rendered partially; only load, render and
// export failures change the exit code.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/aclements/go-gg/table"

	"plotprep/internal/chart"
	"plotprep/internal/config"
	"plotprep/internal/datasource"
	"plotprep/internal/export"
	"plotprep/internal/listcol"
	"plotprep/internal/metrics"
	"plotprep/internal/metrics/datadog"
	"plotprep/internal/prepare"
	"plotprep/internal/storage"

	_ "plotprep/internal/storage/all"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("plotprep: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// appDeps holds the side-effecting steps of a run so tests can replace them.
type appDeps struct {
	loadConfig  func(path string) (*config.File, error)
	loadSource  func(ctx context.Context, spec config.SourceSpec, logger datasource.Logger) (*table.Table, error)
	openRepo    func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	initMetrics func(ctx context.Context, jobName, backendName string) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		loadSource:  datasource.Load,
		openRepo:    storage.New,
		initMetrics: initMetrics,
	}
}

type flags struct {
	cfgPath      string
	source       string
	kind         string
	outDir       string
	format       string
	targetPoints int
	noDownsample bool
	fullScan     bool
	metrics      string
	validate     bool
	verbose      bool
}

// runMain returns the process exit code: 0 on success, 2 on usage errors
// and 1 on any other failure.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("plotprep", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var fl flags
	fs.StringVar(&fl.cfgPath, "config", "", "chart file (YAML or JSON)")
	fs.StringVar(&fl.source, "source", "", "override source path")
	fs.StringVar(&fl.kind, "kind", "", "override source kind")
	fs.StringVar(&fl.outDir, "out", ".", "directory for charts without an explicit output")
	fs.StringVar(&fl.format, "format", "", "override output format of every chart (svg, png)")
	fs.IntVar(&fl.targetPoints, "target-points", 0, "override downsampling target of every chart")
	fs.BoolVar(&fl.noDownsample, "no-downsample", false, "disable downsampling")
	fs.BoolVar(&fl.fullScan, "full-scan", false, "scan every cell when counting list channels")
	fs.StringVar(&fl.metrics, "metrics-backend", os.Getenv("METRICS_BACKEND"), "metrics backend (datadog, none)")
	fs.BoolVar(&fl.validate, "validate", false, "validate the chart file and exit")
	fs.BoolVar(&fl.verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(fl.cfgPath) == "" {
		fmt.Fprintln(stderr, "usage: plotprep -config charts.yaml [flags]")
		return 2
	}

	f, err := deps.loadConfig(fl.cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	applyOverrides(f, fl)

	hasError := false
	for _, iss := range f.Validate() {
		fmt.Fprintln(stderr, iss.String())
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fmt.Fprintf(stderr, "invalid chart file: %s\n", fl.cfgPath)
		return 1
	}
	if fl.validate {
		fmt.Fprintf(stdout, "ok: %s\n", fl.cfgPath)
		return 0
	}

	cleanup, err := deps.initMetrics(ctx, f.Job, fl.metrics)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	logger := log.New(io.Discard, "", 0)
	if fl.verbose {
		logger = log.New(stderr, "plotprep: ", log.LstdFlags|log.Lmicroseconds)
	}

	if err := run(ctx, f, fl.outDir, stdout, stderr, logger, deps); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	return 0
}

// applyOverrides folds command-line flags into the chart file and fills the
// defaults they may have unset.
func applyOverrides(f *config.File, fl flags) {
	if fl.source != "" {
		f.Source.Path = fl.source
		f.Source.Kind = ""
	}
	if fl.kind != "" {
		f.Source.Kind = strings.ToLower(fl.kind)
	}
	if fl.fullScan {
		f.Runtime.FullScan = true
	}
	for i := range f.Charts {
		c := &f.Charts[i]
		if fl.format != "" {
			c.Format = strings.ToLower(fl.format)
		}
		if fl.targetPoints > 0 {
			c.TargetPoints = fl.targetPoints
		}
		if fl.noDownsample {
			off := false
			c.Downsample = &off
		}
	}
	f.ApplyDefaults()
}

func run(ctx context.Context, f *config.File, outDir string, stdout, stderr io.Writer, logger *log.Logger, deps appDeps) error {
	start := time.Now()

	t, err := deps.loadSource(ctx, f.Source, logger)
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}

	budget, err := f.Runtime.BudgetBytes()
	if err != nil {
		return err
	}
	ws := prepare.NewWorkspace(prepare.Options{
		Detector:     listcol.Detector{SampleSize: f.Runtime.DetectSample, FullScan: f.Runtime.FullScan},
		MatrixBudget: budget,
		Logger:       logger,
	})
	src := ws.Add(sourceName(f.Source), t)

	var repo storage.Repository
	if e := f.Export; e != nil && e.Format == "sql" {
		repo, err = deps.openRepo(ctx, storage.Config{Kind: e.Kind, DSN: e.DSN})
		if err != nil {
			return fmt.Errorf("open export store: %w", err)
		}
		defer repo.Close()
	}

	rendered := 0
	for i, spec := range f.Charts {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := requestFor(spec, t)
		p, err := ws.Prepare(src.ID, req)
		if err != nil {
			return fmt.Errorf("chart %q: %w", spec.Title, err)
		}
		for _, w := range p.Warnings {
			fmt.Fprintf(stderr, "warning: chart %q: %s\n", spec.Title, w)
		}

		path := spec.Output
		if path == "" {
			path = filepath.Join(outDir, fmt.Sprintf("%02d_%s.%s", i+1, export.Slug(spec.Title), spec.Format))
		}
		err = chart.RenderFile(path, spec.Format, chart.FromSpec(spec), p)
		switch {
		case errors.Is(err, chart.ErrNoData):
			fmt.Fprintf(stderr, "warning: chart %q: nothing to plot, skipped\n", spec.Title)
		case err != nil:
			return fmt.Errorf("chart %q: %w", spec.Title, err)
		default:
			rendered++
			fmt.Fprintf(stdout, "chart\t%s\t%s\trows=%d\n", spec.Title, path, p.Len())
		}

		if f.Export != nil {
			if err := exportChart(ctx, f.Export, repo, spec.Title, p, stdout); err != nil {
				return fmt.Errorf("chart %q: %w", spec.Title, err)
			}
		}
	}

	stats := ws.CacheStats()
	logger.Printf("stage=run charts=%d rendered=%d cache_hits=%d cache_misses=%d duration=%s",
		len(f.Charts), rendered, stats.Hits, stats.Misses, time.Since(start).Truncate(time.Millisecond))
	return nil
}

// requestFor maps a chart spec onto a pipeline request. Histograms may omit
// x; they bin y values only, so any column keeps the rows aligned.
func requestFor(spec config.ChartSpec, t *table.Table) prepare.Request {
	req := prepare.Request{
		X:            spec.X,
		Axes:         map[prepare.Role]prepare.Selection{},
		Downsample:   spec.Downsample == nil || *spec.Downsample,
		TargetPoints: spec.TargetPoints,
	}
	if req.X == "" && spec.Type == string(chart.Histogram) && len(t.Columns()) > 0 {
		req.X = t.Columns()[0]
	}
	for role, ax := range map[prepare.Role]config.AxisSpec{prepare.Y1: spec.Y1, prepare.Y2: spec.Y2} {
		if ax.Empty() {
			continue
		}
		sel := prepare.Selection{Normal: append([]string(nil), ax.Columns...)}
		if len(ax.Channels) > 0 {
			sel.Lists = make(map[string][]int, len(ax.Channels))
			for c, chans := range ax.Channels {
				sel.Lists[c] = append([]int(nil), chans...)
			}
		}
		req.Axes[role] = sel
	}
	if r := spec.Range; r != nil {
		switch {
		case len(r.Rows) == 2:
			req.Range = prepare.RowRange(r.Rows[0], r.Rows[1])
		case len(r.Values) == 2:
			req.Range = prepare.ValueRange(r.Values[0], r.Values[1])
		}
	}
	return req
}

func exportChart(ctx context.Context, e *config.ExportSpec, repo storage.Repository, title string, p prepare.Prepared, stdout io.Writer) error {
	if e.Format == "sql" {
		name := export.Slug(title)
		if e.Table != "" {
			name = e.Table + "_" + name
		}
		n, err := export.Save(ctx, repo, name, p, true)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "export\t%s\t%s:%s\trows=%d\n", title, e.Kind, name, n)
		return nil
	}
	path, err := export.WriteFile(e.Dir, title, e.Format, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "export\t%s\t%s\trows=%d\n", title, path, p.Len())
	return nil
}

func sourceName(s config.SourceSpec) string {
	if s.Path != "" {
		return filepath.Base(s.Path)
	}
	return s.Kind
}

// metricsBackend is what initMetrics needs from a concrete backend.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b metrics.Backend) { metrics.SetBackend(b) }
	logPrintf         = log.Printf
)

// initMetrics installs the named backend and returns its cleanup, which
// is never nil. "" and "none" leave the no-op backend in place.
func initMetrics(ctx context.Context, jobName, backendName string) (func(), error) {
	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return func() {}, nil
	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName: jobName,
			Tags:    datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
		})
		if err != nil {
			return func() {}, err
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil
	default:
		return func() {}, fmt.Errorf("unknown metrics backend %q", backendName)
	}
}
