package transformer

import "testing"

func TestGetRowZeroesReusedRows(t *testing.T) {
	r := GetRow(3)
	r.V[0], r.V[1], r.V[2] = "a", 1, true
	r.Line = 9
	r.Free()

	for i := 0; i < 4; i++ {
		got := GetRow(2)
		if len(got.V) != 2 || got.V[0] != nil || got.V[1] != nil || got.Line != 0 {
			t.Fatalf("GetRow(2) = %+v, want two nil fields and Line 0", got)
		}
		got.Free()
	}
}

func TestDropDetaches(t *testing.T) {
	t.Parallel()
	r := GetRow(1)
	r.Drop()
	if r.V != nil || r.Line != 0 {
		t.Fatalf("Drop() left %+v", r)
	}
}

func TestTrimCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
		edge     bool
	}{
		{in: "", want: "", edge: false},
		{in: "abc", want: "abc", edge: false},
		{in: " abc", want: "abc", edge: true},
		{in: "abc\t", want: "abc", edge: true},
		{in: "a b", want: "a b", edge: false},
	}
	for _, tt := range tests {
		if got := HasEdgeSpace(tt.in); got != tt.edge {
			t.Fatalf("HasEdgeSpace(%q) = %v, want %v", tt.in, got, tt.edge)
		}
		if got := TrimCell(tt.in); got != tt.want {
			t.Fatalf("TrimCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
