package sqlite

import (
	"context"
	"math"
	"reflect"
	"testing"

	"plotprep/internal/storage"
)

func open(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("storage.New(sqlite) err = %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := open(t)

	cols := []storage.Column{
		{Name: "row_id", Type: storage.Integer, Key: true},
		{Name: "t", Type: storage.Real},
		{Name: "signal #1", Type: storage.Real},
		{Name: "label", Type: storage.Text},
	}
	if err := repo.EnsureTable(ctx, "series", cols); err != nil {
		t.Fatalf("EnsureTable() err = %v", err)
	}
	if err := repo.EnsureTable(ctx, "series", cols); err != nil {
		t.Fatalf("EnsureTable() second call err = %v", err)
	}

	names := []string{"row_id", "t", "signal #1", "label"}
	n, err := repo.InsertRows(ctx, "series", names, [][]any{
		{int64(0), 0.0, 1.5, "a"},
		{int64(7), 0.5, nil, "b"},
	})
	if err != nil || n != 2 {
		t.Fatalf("InsertRows() = %d, %v", n, err)
	}

	gotCols, rows, err := repo.Query(ctx, `SELECT row_id, t, "signal #1", label FROM series ORDER BY row_id`)
	if err != nil {
		t.Fatalf("Query() err = %v", err)
	}
	if !reflect.DeepEqual(gotCols, names) {
		t.Fatalf("columns = %q", gotCols)
	}
	want := [][]any{{int64(0), 0.0, 1.5, "a"}, {int64(7), 0.5, nil, "b"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %#v, want %#v", rows, want)
	}

	if err := repo.Truncate(ctx, "series"); err != nil {
		t.Fatalf("Truncate() err = %v", err)
	}
	if _, rows, _ := repo.Query(ctx, "SELECT * FROM series"); len(rows) != 0 {
		t.Fatalf("rows after Truncate = %v", rows)
	}
}

func TestInsertRowsBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := open(t)

	if err := repo.EnsureTable(ctx, "wide", []storage.Column{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatalf("EnsureTable() err = %v", err)
	}
	rows := make([][]any, 20000)
	for i := range rows {
		rows[i] = []any{float64(i), math.Sqrt(float64(i))}
	}
	n, err := repo.InsertRows(ctx, "wide", []string{"a", "b"}, rows)
	if err != nil || n != int64(len(rows)) {
		t.Fatalf("InsertRows() = %d, %v", n, err)
	}
	_, got, err := repo.Query(ctx, "SELECT COUNT(*) FROM wide")
	if err != nil || got[0][0] != int64(len(rows)) {
		t.Fatalf("count = %v, %v", got, err)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := open(t)

	if err := repo.EnsureTable(ctx, "empty", nil); err == nil {
		t.Fatalf("EnsureTable(no columns) err = nil")
	}
	if _, err := repo.InsertRows(ctx, "missing", []string{"a"}, [][]any{{1}}); err == nil {
		t.Fatalf("InsertRows(missing table) err = nil")
	}
	if _, _, err := repo.Query(ctx, "SELECT * FROM missing"); err == nil {
		t.Fatalf("Query(missing table) err = nil")
	}
}

func TestCreateSQL(t *testing.T) {
	t.Parallel()

	got, err := createSQL("main.x", []storage.Column{{Name: "row_id", Type: storage.Integer, Key: true}, {Name: `we"ird`, Type: storage.Text}})
	if err != nil {
		t.Fatalf("createSQL() err = %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "main"."x" ("row_id" INTEGER, "we""ird" TEXT, PRIMARY KEY ("row_id"))`
	if got != want {
		t.Fatalf("createSQL() =\n%s\nwant\n%s", got, want)
	}
}
