package prepare

import (
	"math"
	"reflect"
	"testing"

	"github.com/aclements/go-gg/table"
)

func TestRangeRows(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	tab := new(table.Builder).
		Add("x", []float64{5, 1, nan, 3, 4}).
		Add("s", []string{"a", "b", "c", "d", "e"}).
		Done()

	tests := []struct {
		name    string
		spec    *RangeSpec
		x       string
		want    []int
		wantErr bool
	}{
		{name: "rows", spec: RowRange(1, 3), x: "x", want: []int{1, 2, 3}},
		{name: "rows_clamped", spec: RowRange(-4, 99), x: "x", want: []int{0, 1, 2, 3, 4}},
		{name: "rows_inverted", spec: RowRange(3, 1), x: "x", want: []int{}},
		{name: "rows_single", spec: RowRange(4, 4), x: "s", want: []int{4}},
		{name: "values", spec: ValueRange(1, 4), x: "x", want: []int{1, 3, 4}},
		{name: "values_inverted", spec: ValueRange(4, 1), x: "x", want: []int{}},
		{name: "values_text_x", spec: ValueRange(0, 1), x: "s", want: []int{}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.spec.Rows(tab, tt.x)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Rows() err = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Rows(%s) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}
