package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a chart file that failed validation.
var ErrInvalid = errors.New("config: invalid chart file")

// Chart defaults, matching the interactive tool's widgets.
const (
	DefaultHeight        = 500
	MinHeight            = 300
	MaxHeight            = 800
	DefaultWidth         = 1000
	DefaultDecimalPlaces = 4
	MaxDecimalPlaces     = 6
	DefaultBins          = 50
	DefaultTargetPoints  = 2000
)

// File is a chart definition file: one data source and the charts drawn
// from it.
type File struct {
	Job     string      `yaml:"job" json:"job"`
	Source  SourceSpec  `yaml:"source" json:"source"`
	Runtime Runtime     `yaml:"runtime" json:"runtime"`
	Charts  []ChartSpec `yaml:"charts" json:"charts"`
	Export  *ExportSpec `yaml:"export,omitempty" json:"export,omitempty"`
}

// SourceSpec locates the input table. Kind is inferred from Path's
// extension when empty.
type SourceSpec struct {
	Kind    string  `yaml:"kind" json:"kind"`
	Path    string  `yaml:"path" json:"path"`
	DSN     string  `yaml:"dsn" json:"dsn"`
	Query   string  `yaml:"query" json:"query"`
	Options Options `yaml:"options" json:"options"`
}

// Runtime tunes the preparation pipeline.
type Runtime struct {
	TargetPoints int `yaml:"target_points" json:"target_points"`
	// MatrixBudget is a byte size such as "256MiB"; "0" disables the cap.
	MatrixBudget string `yaml:"matrix_budget" json:"matrix_budget"`
	DetectSample int    `yaml:"detect_sample" json:"detect_sample"`
	FullScan     bool   `yaml:"full_scan" json:"full_scan"`
}

// BudgetBytes parses MatrixBudget. Empty means 0 (use the library default),
// "0"/"off" means unlimited (-1).
func (r Runtime) BudgetBytes() (int64, error) {
	s := strings.TrimSpace(r.MatrixBudget)
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "0", "off", "none":
		return -1, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("matrix_budget %q: %w", s, err)
	}
	return int64(n), nil
}

// ChartSpec is one chart.
type ChartSpec struct {
	Title         string     `yaml:"title" json:"title"`
	Type          string     `yaml:"type" json:"type"`
	X             string     `yaml:"x" json:"x"`
	Y1            AxisSpec   `yaml:"y1" json:"y1"`
	Y2            AxisSpec   `yaml:"y2" json:"y2"`
	ShowGrid      *bool      `yaml:"show_grid" json:"show_grid"`
	Height        int        `yaml:"height" json:"height"`
	Width         int        `yaml:"width" json:"width"`
	DecimalPlaces *int       `yaml:"decimal_places" json:"decimal_places"`
	Bins          int        `yaml:"bins" json:"bins"`
	Downsample    *bool      `yaml:"downsample" json:"downsample"`
	TargetPoints  int        `yaml:"target_points" json:"target_points"`
	Range         *RangeSpec `yaml:"range,omitempty" json:"range,omitempty"`
	Format        string     `yaml:"format" json:"format"`
	Output        string     `yaml:"output" json:"output"`
}

// AxisSpec selects plain columns and list-column channels (0-based).
type AxisSpec struct {
	Columns  []string         `yaml:"columns" json:"columns"`
	Channels map[string][]int `yaml:"channels" json:"channels"`
}

func (a AxisSpec) Empty() bool { return len(a.Columns) == 0 && len(a.Channels) == 0 }

// RangeSpec holds exactly one of an inclusive row range or an inclusive x
// value range, each as a two-element list.
type RangeSpec struct {
	Rows   []int     `yaml:"rows,omitempty" json:"rows,omitempty"`
	Values []float64 `yaml:"values,omitempty" json:"values,omitempty"`
}

// ExportSpec writes the prepared data of every chart.
type ExportSpec struct {
	Format string `yaml:"format" json:"format"` // csv, json or sql
	Dir    string `yaml:"dir" json:"dir"`
	Kind   string `yaml:"kind" json:"kind"` // sql: sqlite, postgres, mssql
	DSN    string `yaml:"dsn" json:"dsn"`
	Table  string `yaml:"table" json:"table"`
}

// Load reads a chart file. *.json is JSON, everything else YAML.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chart file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(b)
	}
	return ParseYAML(b)
}

// ParseYAML decodes, defaults and validates a YAML chart file.
func ParseYAML(b []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse chart yaml: %w", err)
	}
	return finish(&f)
}

// ParseJSON decodes, defaults and validates a JSON chart file.
func ParseJSON(b []byte) (*File, error) {
	var f File
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse chart json: %w", err)
	}
	return finish(&f)
}

func finish(f *File) (*File, error) {
	f.ApplyDefaults()
	if err := IssuesError(f.Validate()); err != nil {
		return nil, err
	}
	return f, nil
}

// ApplyDefaults fills unset fields.
func (f *File) ApplyDefaults() {
	if f.Job == "" {
		f.Job = "plotprep"
	}
	if f.Runtime.TargetPoints <= 0 {
		f.Runtime.TargetPoints = DefaultTargetPoints
	}
	if f.Source.Kind == "" && f.Source.Path != "" {
		f.Source.Kind = strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Source.Path)), ".")
	}
	for i := range f.Charts {
		c := &f.Charts[i]
		if c.Type == "" {
			c.Type = "line"
		}
		c.Type = strings.ToLower(c.Type)
		if c.Height == 0 {
			c.Height = DefaultHeight
		}
		if c.Width == 0 {
			c.Width = DefaultWidth
		}
		if c.DecimalPlaces == nil {
			d := DefaultDecimalPlaces
			c.DecimalPlaces = &d
		}
		if c.ShowGrid == nil {
			t := true
			c.ShowGrid = &t
		}
		if c.Downsample == nil {
			t := true
			c.Downsample = &t
		}
		if c.TargetPoints <= 0 {
			c.TargetPoints = f.Runtime.TargetPoints
		}
		if c.Bins <= 0 {
			c.Bins = DefaultBins
		}
		if c.Format == "" {
			c.Format = "svg"
		}
		if c.Title == "" {
			c.Title = fmt.Sprintf("Chart %d", i+1)
		}
	}
}
