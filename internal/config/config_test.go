package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleYAML = `
job: sensors
source:
  path: data/run1.CSV
  options:
    comma: ";"
    has_header: true
runtime:
  target_points: 500
  matrix_budget: 64MiB
charts:
  - title: Temperatures
    x: t
    y1:
      columns: [temp]
      channels:
        probes: [0, 2]
    y2:
      columns: [pressure]
    range:
      rows: [0, 999]
  - type: Scatter
    x: t
    y1:
      columns: [humidity]
    decimal_places: 0
    format: png
`

func TestParseYAMLAppliesDefaults(t *testing.T) {
	t.Parallel()

	f, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseYAML() err = %v", err)
	}
	if f.Source.Kind != "csv" {
		t.Fatalf("Source.Kind = %q, want csv from the extension", f.Source.Kind)
	}
	if f.Source.Options.Rune("comma", ',') != ';' {
		t.Fatalf("comma option not decoded: %v", f.Source.Options)
	}
	if n, _ := f.Runtime.BudgetBytes(); n != 64<<20 {
		t.Fatalf("BudgetBytes() = %d, want %d", n, 64<<20)
	}

	c0, c1 := f.Charts[0], f.Charts[1]
	if c0.Type != "line" || c0.Height != DefaultHeight || *c0.DecimalPlaces != DefaultDecimalPlaces || !*c0.ShowGrid || !*c0.Downsample {
		t.Fatalf("chart 0 defaults not applied: %+v", c0)
	}
	if c0.TargetPoints != 500 {
		t.Fatalf("chart 0 target = %d, want runtime's 500", c0.TargetPoints)
	}
	if !reflect.DeepEqual(c0.Y1.Channels, map[string][]int{"probes": {0, 2}}) {
		t.Fatalf("chart 0 channels = %v", c0.Y1.Channels)
	}
	if !reflect.DeepEqual(c0.Range.Rows, []int{0, 999}) {
		t.Fatalf("chart 0 range = %+v", c0.Range)
	}
	if c1.Type != "scatter" || *c1.DecimalPlaces != 0 || c1.Format != "png" || c1.Title != "Chart 2" {
		t.Fatalf("chart 1 = %+v", c1)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	in := `{"source":{"kind":"sqlite","dsn":"file:x.db","query":"select * from m"},
	        "charts":[{"x":"t","y1":{"columns":["v"]}}]}`
	f, err := ParseJSON([]byte(in))
	if err != nil {
		t.Fatalf("ParseJSON() err = %v", err)
	}
	if f.Job != "plotprep" || f.Runtime.TargetPoints != DefaultTargetPoints {
		t.Fatalf("defaults not applied: %+v", f)
	}

	if _, err := ParseJSON([]byte(`{"bogus": 1}`)); err == nil {
		t.Fatalf("ParseJSON() accepted an unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		yaml     string
		wantPath string
	}{
		{name: "no_charts", yaml: "source: {path: a.csv}\n", wantPath: "charts"},
		{name: "bad_kind", yaml: "source: {path: a.parquet}\ncharts: [{x: t}]\n", wantPath: "source.kind"},
		{name: "sql_without_query", yaml: "source: {kind: postgres, dsn: 'postgres://x'}\ncharts: [{x: t}]\n", wantPath: "source.query"},
		{name: "height", yaml: "source: {path: a.csv}\ncharts: [{x: t, height: 900}]\n", wantPath: "charts[0].height"},
		{name: "decimals", yaml: "source: {path: a.csv}\ncharts: [{x: t, decimal_places: 7}]\n", wantPath: "charts[0].decimal_places"},
		{name: "type", yaml: "source: {path: a.csv}\ncharts: [{x: t, type: pie}]\n", wantPath: "charts[0].type"},
		{name: "range_both", yaml: "source: {path: a.csv}\ncharts: [{x: t, range: {rows: [0, 1], values: [0, 1]}}]\n", wantPath: "charts[0].range"},
		{name: "range_inverted", yaml: "source: {path: a.csv}\ncharts: [{x: t, range: {rows: [5, 1]}}]\n", wantPath: "charts[0].range.rows"},
		{name: "missing_x", yaml: "source: {path: a.csv}\ncharts: [{type: line}]\n", wantPath: "charts[0].x"},
		{name: "export_sql", yaml: "source: {path: a.csv}\ncharts: [{x: t}]\nexport: {format: sql}\n", wantPath: "export"},
		{name: "budget", yaml: "source: {path: a.csv}\nruntime: {matrix_budget: lots}\ncharts: [{x: t}]\n", wantPath: "runtime.matrix_budget"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseYAML([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("ParseYAML() err = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantPath+":") {
				t.Fatalf("error %q does not mention %s", err, tt.wantPath)
			}
		})
	}
}

func TestWarningsDoNotFail(t *testing.T) {
	t.Parallel()

	f, err := ParseYAML([]byte("source: {path: a.csv}\ncharts: [{x: t}]\n"))
	if err != nil {
		t.Fatalf("ParseYAML() err = %v", err)
	}
	issues := f.Validate()
	if len(issues) != 1 || issues[0].Severity != SeverityWarning {
		t.Fatalf("Validate() = %v, want one warning about empty axes", issues)
	}
}

func TestLoadByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yml := filepath.Join(dir, "c.yaml")
	js := filepath.Join(dir, "c.json")
	if err := os.WriteFile(yml, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(js, []byte(`{"source":{"path":"a.tsv"},"charts":[{"x":"t"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if f, err := Load(yml); err != nil || f.Job != "sensors" {
		t.Fatalf("Load(yaml) = %v, %v", f, err)
	}
	if f, err := Load(js); err != nil || f.Source.Kind != "tsv" {
		t.Fatalf("Load(json) = %v, %v", f, err)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("Load(missing) err = nil")
	}
}

func TestOptionsGetters(t *testing.T) {
	t.Parallel()

	o := Options{
		"s": "x", "b": "true", "i": 3.0, "f": "2.5", "tab": `\t`,
		"m": map[string]any{"A": "a", "n": 1},
	}
	if o.String("s", "") != "x" || o.String("nope", "d") != "d" {
		t.Fatalf("String getter")
	}
	if !o.Bool("b", false) || o.Bool("nope", true) != true {
		t.Fatalf("Bool getter")
	}
	if o.Int("i", 0) != 3 || o.Int("nope", 7) != 7 {
		t.Fatalf("Int getter")
	}
	if o.Float("f", 0) != 2.5 {
		t.Fatalf("Float getter")
	}
	if o.Rune("tab", ',') != '\t' || o.Rune("nope", ',') != ',' {
		t.Fatalf("Rune getter")
	}
	if m := o.StringMap("m"); !reflect.DeepEqual(m, map[string]string{"A": "a"}) {
		t.Fatalf("StringMap() = %v", m)
	}
	if w := o.With("s", "y"); w.String("s", "") != "y" || o.String("s", "") != "x" {
		t.Fatalf("With() should copy")
	}
}
