package datasource

import (
	"bufio"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"plotprep/internal/config"
	"plotprep/internal/storage"
	_ "plotprep/internal/storage/sqlite"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadFileKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
		kind string
	}{
		{"csv", "a.csv", "t,signal\n0,\"[1, 2]\"\n1,\"[3, 4]\"\n", ""},
		{"tsv", "a.tsv", "t\tsignal\n0\t[1, 2]\n1\t[3, 4]\n", ""},
		{"txt_sniffed", "a.txt", "t;signal\n0;[1, 2]\n1;[3, 4]\n", ""},
		{"json", "a.json", `[{"t":0,"signal":[1,2]},{"t":1,"signal":[3,4]}]`, ""},
		{"ndjson_kind_override", "a.log", "{\"t\":0,\"signal\":[1,2]}\n{\"t\":1,\"signal\":[3,4]}\n", "ndjson"},
		{"html", "a.html", "<table><tr><th>t</th><th>signal</th></tr><tr><td>0</td><td>[1, 2]</td></tr><tr><td>1</td><td>[3, 4]</td></tr></table>", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, tt.file, tt.body)
			tab, err := Load(context.Background(), config.SourceSpec{Kind: tt.kind, Path: path}, nil)
			if err != nil {
				t.Fatalf("Load() err = %v", err)
			}
			if tab.Len() != 2 {
				t.Fatalf("Len() = %d, want 2", tab.Len())
			}
			if got, ok := tab.Column("t").([]float64); !ok || !reflect.DeepEqual(got, []float64{0, 1}) {
				t.Fatalf("t column = %#v, want []float64{0, 1}", tab.Column("t"))
			}
			sig, ok := tab.Column("signal").([]string)
			if !ok || len(sig) != 2 || !strings.HasPrefix(sig[0], "[1,") {
				t.Fatalf("signal column = %#v", tab.Column("signal"))
			}
		})
	}
}

func TestLoadJSONLateColumnsBackfilled(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "late.json", `[{"t":0},{"t":1,"v":5}]`)
	tab, err := Load(context.Background(), config.SourceSpec{Path: path}, nil)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	v := tab.Column("v").([]float64)
	if len(v) != 2 || !math.IsNaN(v[0]) || v[1] != 5 {
		t.Fatalf("v = %v, want [NaN 5]", v)
	}
}

func TestLoadSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dsn := filepath.Join(t.TempDir(), "runs.db")
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New() err = %v", err)
	}
	if err := repo.EnsureTable(ctx, "runs", []storage.Column{{Name: "t", Type: storage.Real}, {Name: "signal", Type: storage.Text}}); err != nil {
		t.Fatalf("EnsureTable() err = %v", err)
	}
	if _, err := repo.InsertRows(ctx, "runs", []string{"t", "signal"}, [][]any{{0.5, "[1, 2]"}, {1.5, "[3]"}}); err != nil {
		t.Fatalf("InsertRows() err = %v", err)
	}
	repo.Close()

	tab, err := Load(ctx, config.SourceSpec{Kind: "sqlite", Path: dsn, Query: "SELECT t, signal FROM runs ORDER BY t"}, nil)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if got := tab.Column("t"); !reflect.DeepEqual(got, []float64{0.5, 1.5}) {
		t.Fatalf("t = %#v", got)
	}
	if got := tab.Column("signal"); !reflect.DeepEqual(got, []string{"[1, 2]", "[3]"}) {
		t.Fatalf("signal = %#v", got)
	}

	if _, err := Load(ctx, config.SourceSpec{Kind: "sqlite", Path: dsn}, nil); err == nil {
		t.Fatalf("Load(no query) err = nil")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	if _, err := Load(context.Background(), config.SourceSpec{Path: writeFile(t, "a.parquet", "x")}, nil); !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("Load(parquet) err = %v, want ErrUnsupportedKind", err)
	}
	if _, err := Load(context.Background(), config.SourceSpec{Path: filepath.Join(t.TempDir(), "missing.csv")}, nil); err == nil {
		t.Fatalf("Load(missing file) err = nil")
	}
	if _, err := Load(context.Background(), config.SourceSpec{Kind: "csv"}, nil); err == nil {
		t.Fatalf("Load(no path) err = nil")
	}
}

func TestReadEmptyAndRejected(t *testing.T) {
	t.Parallel()

	tab, err := Read(context.Background(), "csv", nopCloser(""), nil, nil)
	if err != nil || tab.Len() != 0 {
		t.Fatalf("Read(empty) = %v, %v", tab, err)
	}

	var logs []string
	lg := logFunc(func(f string, v ...any) { logs = append(logs, f) })
	tab, err = Read(context.Background(), "json", nopCloser(`[{"t":1},7,{"t":2}]`), nil, lg)
	if err != nil || tab.Len() != 2 {
		t.Fatalf("Read(json) = %d rows, %v", tab.Len(), err)
	}
	if len(logs) < 2 {
		t.Fatalf("expected parse error logs, got %q", logs)
	}
}

func TestSniffDelimiter(t *testing.T) {
	t.Parallel()

	tests := map[string]rune{
		"a\tb\tc\n1\t2\t3": '\t',
		"a;b;c":            ';',
		"a|b":              '|',
		"a,b":              ',',
		"single":           ',',
	}
	for in, want := range tests {
		if got := SniffDelimiter(bufio.NewReader(strings.NewReader(in))); got != want {
			t.Fatalf("SniffDelimiter(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromRowsDedupesNames(t *testing.T) {
	t.Parallel()

	tab := FromRows([]string{"v", "v"}, [][]any{{int64(1), []byte("x")}})
	if !reflect.DeepEqual(tab.Columns(), []string{"v", "v_2"}) {
		t.Fatalf("columns = %q", tab.Columns())
	}
}

type logFunc func(string, ...any)

func (f logFunc) Printf(format string, v ...any) { f(format, v...) }

type stringCloser struct{ *strings.Reader }

func (stringCloser) Close() error { return nil }

func nopCloser(s string) stringCloser { return stringCloser{strings.NewReader(s)} }
