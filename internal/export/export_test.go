package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aclements/go-gg/table"
	gojson "github.com/goccy/go-json"

	"plotprep/internal/prepare"
	"plotprep/internal/storage"
	_ "plotprep/internal/storage/sqlite"
)

func prepared(t *testing.T) prepare.Prepared {
	t.Helper()
	tab := new(table.Builder).
		Add("t", []float64{0, 1, 2, 3}).
		Add("signal", []string{"[1, 10]", "[2, nan]", "[3, 30]", "[4, 40]"}).
		Add("label", []string{"a", "b", "c", "d"}).
		Done()
	p := prepare.Prepare(tab, prepare.Request{
		X:     "t",
		Axes:  map[prepare.Role]prepare.Selection{prepare.Y1: {Normal: []string{"label"}, Lists: map[string][]int{"signal": {1}}}},
		Range: prepare.RowRange(1, 2),
	})
	if p.Len() != 2 {
		t.Fatalf("prepared rows = %d, want 2 (warnings %q)", p.Len(), p.Warnings)
	}
	return p
}

func TestRowsAndColumns(t *testing.T) {
	t.Parallel()

	p := prepared(t)
	if got, want := Columns(p), []string{"row_id", "t", "label", "signal #2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Columns() = %q, want %q", got, want)
	}
	want := [][]any{
		{int64(1), 1.0, "b", nil},
		{int64(2), 2.0, "c", 30.0},
	}
	if got := Rows(p); !reflect.DeepEqual(got, want) {
		t.Fatalf("Rows() = %#v, want %#v", got, want)
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, prepared(t)); err != nil {
		t.Fatalf("WriteCSV() err = %v", err)
	}
	want := "row_id,t,label,signal #2\n1,1,b,\n2,2,c,30\n"
	if buf.String() != want {
		t.Fatalf("WriteCSV() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteJSON(&buf, prepared(t)); err != nil {
		t.Fatalf("WriteJSON() err = %v", err)
	}
	var doc Document
	if err := gojson.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if doc.X != "t" || len(doc.Rows) != 2 || doc.Rows[0][3] != nil {
		t.Fatalf("document = %+v", doc)
	}
	if !reflect.DeepEqual(doc.Axes["Y1"], []string{"label", "signal #2"}) {
		t.Fatalf("axes = %v", doc.Axes)
	}
}

func TestSaveSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("storage.New() err = %v", err)
	}
	defer repo.Close()

	p := prepared(t)
	for i := 0; i < 2; i++ {
		n, err := Save(ctx, repo, "chart_1", p, true)
		if err != nil || n != 2 {
			t.Fatalf("Save() #%d = %d, %v", i, n, err)
		}
	}
	_, rows, err := repo.Query(ctx, `SELECT row_id, "signal #2" FROM chart_1 ORDER BY row_id`)
	if err != nil {
		t.Fatalf("Query() err = %v", err)
	}
	if len(rows) != 2 || rows[0][1] != nil || rows[1][1] != 30.0 {
		t.Fatalf("rows = %#v", rows)
	}

	if _, err := Save(ctx, repo, "chart_1", p, false); err == nil {
		t.Fatalf("appending duplicate row ids should violate the primary key")
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := WriteFile(filepath.Join(dir, "out"), "Signal vs Time!", "csv", prepared(t))
	if err != nil {
		t.Fatalf("WriteFile() err = %v", err)
	}
	if filepath.Base(path) != "signal_vs_time.csv" {
		t.Fatalf("path = %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil || !strings.HasPrefix(string(b), "row_id,") {
		t.Fatalf("file = %q, %v", b, err)
	}
	if _, err := WriteFile(dir, "x", "parquet", prepared(t)); err == nil {
		t.Fatalf("WriteFile(parquet) err = nil")
	}
}

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Chart 1":          "chart_1",
		"  --Voltage (V)":  "voltage_v",
		"":                 "chart",
		"Ünïcode ≠ ascii!": "n_code_ascii",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
