package config

import (
	"fmt"
	"strings"
)

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted location such as
// "charts[1].y1".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

var (
	sourceKinds = map[string]bool{
		"csv": true, "tsv": true, "txt": true, "json": true, "ndjson": true,
		"html": true, "htm": true, "xlsx": true,
		"sqlite": true, "postgres": true, "mssql": true,
	}
	chartTypes    = map[string]bool{"line": true, "scatter": true, "histogram": true}
	outputFormats = map[string]bool{"svg": true, "png": true}
	exportFormats = map[string]bool{"csv": true, "json": true, "sql": true}
)

// IsSQLKind reports whether kind reads from a database.
func IsSQLKind(kind string) bool {
	return kind == "sqlite" || kind == "postgres" || kind == "mssql"
}

// Validate reports every problem at once. Call ApplyDefaults first.
func (f *File) Validate() []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	src := f.Source
	switch {
	case src.Kind == "":
		add(SeverityError, "source.kind", "kind is required when path has no extension")
	case !sourceKinds[src.Kind]:
		add(SeverityError, "source.kind", "unknown source kind %q", src.Kind)
	case IsSQLKind(src.Kind):
		if src.DSN == "" && src.Path == "" {
			add(SeverityError, "source.dsn", "dsn is required for %s", src.Kind)
		}
		if strings.TrimSpace(src.Query) == "" {
			add(SeverityError, "source.query", "query is required for %s", src.Kind)
		}
	case src.Path == "":
		add(SeverityError, "source.path", "path is required")
	}

	if _, err := f.Runtime.BudgetBytes(); err != nil {
		add(SeverityError, "runtime.matrix_budget", "%v", err)
	}
	if f.Runtime.DetectSample < 0 {
		add(SeverityError, "runtime.detect_sample", "must not be negative")
	}

	if len(f.Charts) == 0 {
		add(SeverityError, "charts", "at least one chart is required")
	}
	for i, c := range f.Charts {
		p := fmt.Sprintf("charts[%d]", i)
		if !chartTypes[c.Type] {
			add(SeverityError, p+".type", "unknown chart type %q (line, scatter, histogram)", c.Type)
		}
		if c.X == "" && c.Type != "histogram" {
			add(SeverityError, p+".x", "x column is required")
		}
		if c.Y1.Empty() && c.Y2.Empty() {
			add(SeverityWarning, p, "no y columns selected; the chart will be empty")
		}
		if c.Type == "histogram" && !c.Y2.Empty() {
			add(SeverityWarning, p+".y2", "histograms ignore the secondary axis")
		}
		for _, ax := range []struct {
			name string
			spec AxisSpec
		}{{"y1", c.Y1}, {"y2", c.Y2}} {
			for col, chans := range ax.spec.Channels {
				if len(chans) == 0 {
					add(SeverityWarning, p+"."+ax.name+".channels."+col, "no channels listed")
				}
				for _, ch := range chans {
					if ch < 0 {
						add(SeverityError, p+"."+ax.name+".channels."+col, "negative channel %d", ch)
					}
				}
			}
		}
		if c.Height < MinHeight || c.Height > MaxHeight {
			add(SeverityError, p+".height", "height %d outside [%d, %d]", c.Height, MinHeight, MaxHeight)
		}
		if c.Width < 200 {
			add(SeverityError, p+".width", "width %d is below 200", c.Width)
		}
		if d := *c.DecimalPlaces; d < 0 || d > MaxDecimalPlaces {
			add(SeverityError, p+".decimal_places", "decimal places %d outside [0, %d]", d, MaxDecimalPlaces)
		}
		if !outputFormats[c.Format] {
			add(SeverityError, p+".format", "unknown output format %q (svg, png)", c.Format)
		}
		if r := c.Range; r != nil {
			switch {
			case r.Rows != nil && r.Values != nil:
				add(SeverityError, p+".range", "set either rows or values, not both")
			case r.Rows != nil && len(r.Rows) != 2:
				add(SeverityError, p+".range.rows", "want [start, end]")
			case r.Rows != nil && r.Rows[0] > r.Rows[1]:
				add(SeverityError, p+".range.rows", "start %d after end %d", r.Rows[0], r.Rows[1])
			case r.Values != nil && len(r.Values) != 2:
				add(SeverityError, p+".range.values", "want [min, max]")
			case r.Values != nil && r.Values[0] > r.Values[1]:
				add(SeverityError, p+".range.values", "min %g above max %g", r.Values[0], r.Values[1])
			case r.Rows == nil && r.Values == nil:
				add(SeverityError, p+".range", "empty range")
			}
		}
	}

	if e := f.Export; e != nil {
		switch {
		case !exportFormats[e.Format]:
			add(SeverityError, "export.format", "unknown export format %q (csv, json, sql)", e.Format)
		case e.Format == "sql" && (!IsSQLKind(e.Kind) || e.DSN == ""):
			add(SeverityError, "export", "sql export needs kind (sqlite, postgres, mssql) and dsn")
		case e.Format != "sql" && e.Dir == "":
			add(SeverityError, "export.dir", "dir is required")
		}
	}
	return issues
}

// IssuesError folds error-severity issues into one error wrapping
// ErrInvalid; warnings alone yield nil.
func IssuesError(issues []Issue) error {
	var msgs []string
	for _, is := range issues {
		if is.Severity == SeverityError {
			msgs = append(msgs, is.Path+": "+is.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n  %s", ErrInvalid, strings.Join(msgs, "\n  "))
}
