// Package prepare turns a loaded table and a chart's column selection into
// the rows and columns a chart renders.
//
// Prepare runs three stages in a fixed order:
//
//  1. range filter: keep a row-position or x-value range (optional)
//  2. expansion: unpack the selected list-column channels and attach them
//  3. downsampling: LTTB on a numeric x, stride sampling otherwise; only
//     when enabled, when no range was applied and when the table is still
//     larger than the target
//
// Every output row carries the position it had in the source table, so a
// plotted point can always be traced back to its row.
package prepare

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/aclements/go-gg/table"

	"plotprep/internal/cache"
	"plotprep/internal/downsample"
	"plotprep/internal/frame"
	"plotprep/internal/listcol"
	"plotprep/internal/metrics"
)

// DefaultTargetPoints is used when a request leaves TargetPoints unset.
const DefaultTargetPoints = 2000

// Logger is the minimal logging interface used by the pipeline.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Request describes one chart's data needs.
type Request struct {
	X            string
	Axes         map[Role]Selection
	Range        *RangeSpec
	Downsample   bool
	TargetPoints int
}

// Prepared is the pipeline output. Table holds X first, then the resolved
// axis columns; RowIDs[i] is the source row of Table row i.
type Prepared struct {
	Table       *table.Table
	RowIDs      []int
	X           string
	Axes        map[Role][]string
	Downsampled bool
	Method      downsample.Method
	Warnings    []string
}

// Len is the number of prepared rows.
func (p Prepared) Len() int { return len(p.RowIDs) }

// Columns returns every resolved y column, Y1 first, without duplicates.
func (p Prepared) Columns() []string {
	var out []string
	for _, r := range Roles {
		for _, c := range p.Axes[r] {
			if indexOf(out, c) < 0 {
				out = append(out, c)
			}
		}
	}
	return out
}

// Pipeline prepares plot data. The zero value works but does not cache
// expanded matrices across calls.
type Pipeline struct {
	Expander *listcol.Expander
	Logger   Logger
}

// Prepare runs the stages for req against src. infos are src's detected
// list columns.
//
// Prepare does not fail: a missing x column, unknown columns or a range
// that matches nothing produce an empty or partial result with Warnings.
func (p *Pipeline) Prepare(src frame.Source, infos map[string]listcol.Info, req Request) Prepared {
	logf := p.logger()
	start := time.Now()
	base := src.Table
	if base == nil {
		base = new(table.Table)
	}
	res := Prepared{X: req.X, Axes: make(map[Role][]string), Method: downsample.None}

	if !frame.Has(base, req.X) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unknown x column %q", req.X))
		res.Table, res.RowIDs = new(table.Table), []int{}
		metrics.RecordStage("prepare", "degraded", time.Since(start))
		return res
	}

	axes := make(map[Role]Selection, len(req.Axes))
	for _, role := range Roles {
		sel, warns := Normalize(req.Axes[role], base, infos)
		axes[role] = sel
		for _, w := range warns {
			res.Warnings = append(res.Warnings, string(role)+": "+w)
		}
	}
	for role := range req.Axes {
		if role != Y1 && role != Y2 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unknown axis role %q ignored", role))
		}
	}

	// Stage 1: range filter.
	stageStart := time.Now()
	normal := []string{req.X}
	for _, role := range Roles {
		for _, c := range axes[role].Normal {
			if indexOf(normal, c) < 0 {
				normal = append(normal, c)
			}
		}
	}
	work := frame.Select(base, normal)
	var rows []int
	if req.Range != nil {
		var err error
		rows, err = req.Range.Rows(base, req.X)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		}
		work = frame.Take(work, rows)
		logf("stage=range spec=%q rows_in=%d rows_out=%d duration=%s", req.Range.String(), base.Len(), len(rows), durMS(stageStart))
		metrics.RecordStage("range", "ok", time.Since(stageStart))
	} else {
		rows = frame.Identity(base.Len())
	}

	// Stage 2: expansion. Matrices are cached per source column, and rows
	// are gathered by source position, so the filtered view stays aligned.
	stageStart = time.Now()
	channels := make(map[string][]int)
	var listCols []string
	for _, role := range Roles {
		for _, c := range axes[role].ListColumns() {
			if _, ok := channels[c]; !ok {
				listCols = append(listCols, c)
			}
			channels[c] = union(channels[c], axes[role].Lists[c])
		}
	}
	var gather []int
	if req.Range != nil {
		gather = rows
	}
	exp := p.expander()
	for _, c := range listCols {
		ext := exp.Expand(base, cache.Key{Source: src.ID, Column: c}, channels[c], gather)
		if len(ext.Columns()) == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("list column %q produced no channels", c))
			continue
		}
		work = frame.Attach(work, ext)
	}
	if len(listCols) > 0 {
		logf("stage=expand columns=%d rows=%d duration=%s", len(listCols), work.Len(), durMS(stageStart))
		metrics.RecordStage("expand", "ok", time.Since(stageStart))
	}

	for _, role := range Roles {
		sel := axes[role]
		var names []string
		names = append(names, sel.Normal...)
		for _, c := range sel.ListColumns() {
			for _, ch := range sel.Lists[c] {
				if name := listcol.ChannelName(c, ch); frame.Has(work, name) {
					names = append(names, name)
				}
			}
		}
		if len(names) > 0 {
			res.Axes[role] = names
		}
	}
	ycols := res.Columns()
	if len(ycols) == 0 {
		res.Warnings = append(res.Warnings, "no y columns selected")
	}

	// Stage 3: downsampling.
	target := req.TargetPoints
	if target <= 0 {
		target = DefaultTargetPoints
	}
	if req.Downsample && req.Range == nil && work.Len() > target {
		stageStart = time.Now()
		before := work.Len()
		ds := downsample.Downsample(work, req.X, ycols, target, p.Logger)
		for _, c := range ds.Dropped {
			res.Warnings = append(res.Warnings, fmt.Sprintf("downsampling failed for %q", c))
		}
		kept := make([]int, len(ds.Rows))
		for i, r := range ds.Rows {
			kept[i] = rows[r]
		}
		work, rows = ds.Table, kept
		res.Method = ds.Method
		res.Downsampled = ds.Method != downsample.None
		logf("stage=downsample method=%s rows_in=%d rows_out=%d target=%d duration=%s", ds.Method, before, len(rows), target, durMS(stageStart))
		metrics.RecordStage("downsample", "ok", time.Since(stageStart))
		metrics.AddRows("sampled_out", before-len(rows))
	}

	res.Table = frame.Select(work, append([]string{req.X}, ycols...))
	res.RowIDs = rows

	status := "ok"
	if len(res.Warnings) > 0 {
		status = "degraded"
	}
	logf("stage=prepare source=%s x=%q rows=%d columns=%d status=%s duration=%s", src.ID, req.X, len(rows), len(ycols), status, durMS(start))
	metrics.RecordStage("prepare", status, time.Since(start))
	metrics.AddRows("prepared", len(rows))
	return res
}

// Prepare runs a one-off pipeline over t, detecting list columns first.
// Nothing is cached between calls.
func Prepare(t *table.Table, req Request) Prepared {
	src := frame.NewSource("", t)
	return new(Pipeline).Prepare(src, listcol.Detect(src.Table), req)
}

func (p *Pipeline) expander() *listcol.Expander {
	if p.Expander == nil {
		return &listcol.Expander{Budget: listcol.DefaultBudget, Logger: p.Logger}
	}
	return p.Expander
}

func (p *Pipeline) logger() func(format string, v ...any) {
	if p.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return p.Logger.Printf
}

func union(a, b []int) []int {
	out := append([]int(nil), a...)
	for _, v := range b {
		found := false
		for _, w := range out {
			if w == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

func durMS(start time.Time) time.Duration {
	return time.Since(start).Truncate(time.Millisecond)
}
