package chart

import (
	"fmt"
	"io"

	"github.com/aclements/go-gg/gg"
	"github.com/aclements/go-gg/table"

	"plotprep/internal/prepare"
)

// RenderSVG draws series with go-gg. A Y2 axis becomes a second facet row
// with its own y scale, labeled with the axis title.
func RenderSVG(w io.Writer, cfg Config, series []Series) (err error) {
	cfg = cfg.Normalize()
	if !hasPoints(series) {
		return ErrNoData
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chart: svg render: %v", r)
		}
	}()

	var plot *gg.Plot
	if cfg.Type == Histogram {
		h, ok := histogramOf(series, cfg.Bins)
		if !ok {
			return ErrNoData
		}
		plot = histogramPlot(cfg, h)
	} else {
		plot = seriesPlot(cfg, series)
	}
	if cfg.Title != "" {
		plot.Add(gg.Title(cfg.Title))
	}
	return plot.WriteSVG(w, cfg.Width, cfg.Height)
}

// longTable stacks every series into one table with x, value, series,
// axis and tooltip columns.
func longTable(series []Series) (*table.Table, bool) {
	var (
		xs, vals              []float64
		names, axes, tooltips []string
	)
	y1, y2 := AxisTitles(series)
	for _, s := range series {
		axis := "Y1: " + y1
		if s.Axis == prepare.Y2 {
			axis = "Y2: " + y2
		}
		for i := range s.Y {
			xs = append(xs, s.X[i])
			vals = append(vals, s.Y[i])
			names = append(names, s.Name)
			axes = append(axes, axis)
			tooltips = append(tooltips, s.Tooltips[i])
		}
	}
	t := new(table.Builder).
		Add("x", xs).
		Add("value", vals).
		Add("series", names).
		Add("axis", axes).
		Add("tooltip", tooltips).
		Done()
	return t, y2 != ""
}

func seriesPlot(cfg Config, series []Series) *gg.Plot {
	t, dual := longTable(series)
	plot := gg.NewPlot(t)
	if dual {
		plot.Add(gg.FacetY{Col: "axis", SplitYScales: true})
	}
	switch cfg.Type {
	case Scatter:
		plot.Add(gg.LayerPoints{X: "x", Y: "value", Color: "series"})
	default:
		plot.Add(gg.LayerLines{X: "x", Y: "value", Color: "series"})
	}
	plot.Add(gg.LayerTooltips{X: "x", Y: "value", Label: "tooltip"})

	xLabel := cfg.X
	if len(series) > 0 && series[0].Labels != nil {
		xLabel += " (position)"
	}
	y1, _ := AxisTitles(series)
	if dual {
		y1 = "value"
	}
	plot.Add(gg.AxisLabel("x", xLabel), gg.AxisLabel("y", y1))
	return plot
}

func histogramPlot(cfg Config, h Hist) *gg.Plot {
	centers := h.Centers()
	tips := make([]string, len(centers))
	for i := range centers {
		tips[i] = fmt.Sprintf("[%s, %s): %.0f", cfg.FormatTick(h.Edges[i]), cfg.FormatTick(h.Edges[i+1]), h.Counts[i])
	}
	t := new(table.Builder).
		Add("x", centers).
		Add("count", h.Counts).
		Add("tooltip", tips).
		Done()
	plot := gg.NewPlot(t)
	plot.Add(gg.LayerSteps{LayerPaths: gg.LayerPaths{X: "x", Y: "count"}, Step: gg.StepHMid})
	plot.Add(gg.LayerPoints{X: "x", Y: "count"})
	plot.Add(gg.LayerTooltips{X: "x", Y: "count", Label: "tooltip"})
	plot.Add(gg.AxisLabel("x", h.Name), gg.AxisLabel("y", "count"))
	return plot
}
