package chart

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"plotprep/internal/prepare"
)

// Render builds the series of p and writes the chart as format ("svg" or
// "png").
func Render(w io.Writer, format string, cfg Config, p prepare.Prepared) error {
	series := BuildSeries(p, cfg)
	switch strings.ToLower(format) {
	case "", "svg":
		return RenderSVG(w, cfg, series)
	case "png":
		return RenderPNG(w, cfg, series)
	}
	return fmt.Errorf("chart: unsupported format %q", format)
}

// RenderFile renders into path, choosing the format from its extension
// unless format is set. Nothing is left behind on failure.
func RenderFile(path, format string, cfg Config, p prepare.Prepared) error {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Render(f, format, cfg, p); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
