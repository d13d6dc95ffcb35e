// Package chart turns prepared plot data into rendered charts: SVG through
// go-gg, PNG through go-chart.
package chart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"plotprep/internal/config"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("chart: no data to plot")

// Type is the chart kind.
type Type string

const (
	Line      Type = "line"
	Scatter   Type = "scatter"
	Histogram Type = "histogram"
)

// Config controls rendering. Use FromSpec or Normalize to get the
// defaults and bounds applied.
type Config struct {
	Title         string
	Type          Type
	X             string
	ShowGrid      bool
	Height        int
	Width         int
	DecimalPlaces int
	Bins          int
}

// FromSpec builds a Config from a chart definition.
func FromSpec(s config.ChartSpec) Config {
	c := Config{
		Title:         s.Title,
		Type:          Type(strings.ToLower(s.Type)),
		X:             s.X,
		ShowGrid:      true,
		Height:        s.Height,
		Width:         s.Width,
		DecimalPlaces: config.DefaultDecimalPlaces,
		Bins:          s.Bins,
	}
	if s.ShowGrid != nil {
		c.ShowGrid = *s.ShowGrid
	}
	if s.DecimalPlaces != nil {
		c.DecimalPlaces = *s.DecimalPlaces
	}
	return c.Normalize()
}

// Normalize fills defaults and clamps sizes: height into [300, 800],
// decimals into [0, 6].
func (c Config) Normalize() Config {
	if c.Type == "" {
		c.Type = Line
	}
	switch {
	case c.Height == 0:
		c.Height = config.DefaultHeight
	case c.Height < config.MinHeight:
		c.Height = config.MinHeight
	case c.Height > config.MaxHeight:
		c.Height = config.MaxHeight
	}
	if c.Width <= 0 {
		c.Width = config.DefaultWidth
	}
	c.DecimalPlaces = min(max(c.DecimalPlaces, 0), config.MaxDecimalPlaces)
	if c.Bins <= 0 {
		c.Bins = config.DefaultBins
	}
	return c
}

// HoverFormat is the printf verb for hover values, e.g. "%.4f".
func (c Config) HoverFormat() string {
	return fmt.Sprintf("%%.%df", c.DecimalPlaces)
}

// FormatHover renders v with HoverFormat.
func (c Config) FormatHover(v float64) string {
	return fmt.Sprintf(c.HoverFormat(), v)
}

// FormatTick renders an axis tick with thousands separators.
func (c Config) FormatTick(v float64) string {
	return humanize.CommafWithDigits(v, c.DecimalPlaces)
}
