package storage

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"
)

func TestBatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		n, cols, params int
		want            [][2]int
	}{
		{"empty", 0, 3, 10, nil},
		{"one_batch", 3, 2, 100, [][2]int{{0, 3}}},
		{"split", 5, 2, 4, [][2]int{{0, 2}, {2, 4}, {4, 5}}},
		{"wide_rows", 2, 10, 4, [][2]int{{0, 1}, {1, 2}}},
		{"no_limit", 4, 2, 0, [][2]int{{0, 4}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Batches(tt.n, tt.cols, tt.params); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Batches(%d, %d, %d) = %v, want %v", tt.n, tt.cols, tt.params, got, tt.want)
			}
		})
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	quote := func(s string) string { return `"` + s + `"` }
	got := InsertSQL("plots.series", []string{"row_id", "v"}, 2, quote, func(n int) string { return "$" + strconv.Itoa(n) })
	want := `INSERT INTO "plots"."series" ("row_id", "v") VALUES ($1, $2), ($3, $4)`
	if got != want {
		t.Fatalf("InsertSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestCheckRowsAndFlatten(t *testing.T) {
	t.Parallel()

	if err := CheckRows(nil, nil); err == nil {
		t.Fatalf("CheckRows(no columns) err = nil")
	}
	if err := CheckRows([]string{"a", "b"}, [][]any{{1, 2}, {3}}); err == nil {
		t.Fatalf("CheckRows(short row) err = nil")
	}
	rows := [][]any{{1, 2}, {3, 4}, {5, 6}}
	if got := Flatten(rows, 1, 3); !reflect.DeepEqual(got, []any{3, 4, 5, 6}) {
		t.Fatalf("Flatten() = %v", got)
	}
	if got := Flatten(rows, 2, 2); got != nil {
		t.Fatalf("Flatten(empty) = %v, want nil", got)
	}
}

type nopRepo struct{ Repository }

func TestRegistry(t *testing.T) {
	Register("test-nop", func(context.Context, Config) (Repository, error) { return nopRepo{}, nil })

	if _, err := New(context.Background(), Config{Kind: "test-nop"}); err != nil {
		t.Fatalf("New(test-nop) err = %v", err)
	}
	if _, err := New(context.Background(), Config{Kind: "nope"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("New(nope) err = %v, want ErrUnknownKind", err)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("New(empty kind) err = nil")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate Register did not panic")
		}
	}()
	Register("test-nop", func(context.Context, Config) (Repository, error) { return nil, nil })
}
