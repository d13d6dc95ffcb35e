package chart

import (
	"io"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"plotprep/internal/prepare"
)

var gridStyle = gochart.Style{
	StrokeColor: drawing.ColorFromHex("e0e0e0"),
	StrokeWidth: 1,
}

// RenderPNG draws series with go-chart. Y2 series are bound to the
// chart's secondary y axis.
func RenderPNG(w io.Writer, cfg Config, series []Series) error {
	cfg = cfg.Normalize()
	if !hasPoints(series) {
		return ErrNoData
	}
	if cfg.Type == Histogram {
		h, ok := histogramOf(series, cfg.Bins)
		if !ok {
			return ErrNoData
		}
		return renderHistogramPNG(w, cfg, h)
	}

	y1, y2 := AxisTitles(series)
	tick := func(v any) string {
		if f, ok := v.(float64); ok {
			return cfg.FormatTick(f)
		}
		return ""
	}
	ch := gochart.Chart{
		Title:  cfg.Title,
		Width:  cfg.Width,
		Height: cfg.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis: gochart.XAxis{Name: cfg.X, ValueFormatter: tick},
		YAxis: gochart.YAxis{Name: y1, ValueFormatter: tick},
	}
	if y2 != "" {
		ch.YAxisSecondary = gochart.YAxis{Name: y2, ValueFormatter: tick}
	}
	if cfg.ShowGrid {
		ch.XAxis.GridMajorStyle = gridStyle
		ch.YAxis.GridMajorStyle = gridStyle
	}

	var xmin, xmax = math.Inf(1), math.Inf(-1)
	ranges := map[prepare.Role]*gochart.ContinuousRange{}
	for i, s := range series {
		if s.Len() == 0 {
			continue
		}
		style := gochart.Style{StrokeColor: gochart.GetDefaultColor(i), StrokeWidth: 1.5}
		if cfg.Type == Scatter {
			style = gochart.Style{
				StrokeColor: drawing.ColorTransparent,
				DotColor:    gochart.GetDefaultColor(i),
				DotWidth:    3,
			}
		}
		cs := gochart.ContinuousSeries{Name: s.Name, XValues: s.X, YValues: s.Y, Style: style}
		if s.Axis == prepare.Y2 {
			cs.YAxis = gochart.YAxisSecondary
		}
		ch.Series = append(ch.Series, cs)

		lo, hi := bounds(s.X)
		xmin, xmax = math.Min(xmin, lo), math.Max(xmax, hi)
		lo, hi = bounds(s.Y)
		r := ranges[s.Axis]
		if r == nil {
			r = &gochart.ContinuousRange{Min: lo, Max: hi}
			ranges[s.Axis] = r
		}
		r.Min, r.Max = math.Min(r.Min, lo), math.Max(r.Max, hi)
	}

	// go-chart rejects zero-width ranges, so a single point or a flat
	// series gets padded.
	ch.XAxis.Range = padded(xmin, xmax)
	if r := ranges[prepare.Y1]; r != nil {
		ch.YAxis.Range = padded(r.Min, r.Max)
	}
	if r := ranges[prepare.Y2]; r != nil {
		ch.YAxisSecondary.Range = padded(r.Min, r.Max)
	}
	if s := series[0]; s.Labels != nil {
		ch.XAxis.Ticks = labelTicks(s.X, s.Labels, 10)
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	return ch.Render(gochart.PNG, w)
}

func renderHistogramPNG(w io.Writer, cfg Config, h Hist) error {
	bars := make([]gochart.Value, len(h.Counts))
	for i, c := range h.Counts {
		label := ""
		if i%max(len(h.Counts)/10, 1) == 0 {
			label = cfg.FormatTick(h.Edges[i])
		}
		bars[i] = gochart.Value{Value: c, Label: label}
	}
	_, top := bounds(h.Counts)
	barWidth := max((cfg.Width-80)/max(len(bars), 1)-2, 1)
	bc := gochart.BarChart{
		Title:    cfg.Title,
		Width:    cfg.Width,
		Height:   cfg.Height,
		BarWidth: barWidth,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40},
		},
		YAxis: gochart.YAxis{Name: "count", Range: &gochart.ContinuousRange{Min: 0, Max: math.Max(top*1.05, 1)}},
		Bars:  bars,
	}
	if cfg.ShowGrid {
		bc.YAxis.GridMajorStyle = gridStyle
	}
	return bc.Render(gochart.PNG, w)
}

func bounds(vs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return lo, hi
}

func padded(lo, hi float64) *gochart.ContinuousRange {
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return &gochart.ContinuousRange{Min: 0, Max: 1}
	}
	if lo == hi {
		d := math.Max(math.Abs(lo)*0.05, 0.5)
		lo, hi = lo-d, hi+d
	}
	return &gochart.ContinuousRange{Min: lo, Max: hi}
}

// labelTicks places about n text ticks, evenly spaced over the points.
func labelTicks(xs []float64, labels []string, n int) []gochart.Tick {
	step := max(len(labels)/n, 1)
	var ticks []gochart.Tick
	for i := 0; i < len(labels); i += step {
		ticks = append(ticks, gochart.Tick{Value: xs[i], Label: labels[i]})
	}
	return ticks
}
