package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// Batches splits n rows of width cols into [start, end) ranges so that no
// batch binds more than maxParams parameters.
func Batches(n, cols, maxParams int) [][2]int {
	if n <= 0 {
		return nil
	}
	per := n
	if cols > 0 && maxParams > 0 {
		per = max(maxParams/cols, 1)
	}
	var out [][2]int
	for start := 0; start < n; start += per {
		out = append(out, [2]int{start, min(start+per, n)})
	}
	return out
}

// CheckRows verifies every row has exactly len(columns) values.
func CheckRows(columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("storage: no columns")
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return fmt.Errorf("storage: row %d has %d values, want %d", i, len(r), len(columns))
		}
	}
	return nil
}

// ScanAll drains database/sql rows into memory.
func ScanAll(rows *sql.Rows) ([]string, [][]any, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return cols, out, rows.Err()
}

// InsertSQL builds a multi-row INSERT. quote quotes one identifier (the
// table name may be schema-qualified) and placeholder returns the n-th
// (1-based) bind marker.
func InsertSQL(table string, columns []string, nrows int, quote func(string) string, placeholder func(int) string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteQualified(table, quote))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(c))
	}
	b.WriteString(") VALUES ")
	p := 1
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholder(p))
			p++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// QuoteQualified quotes each dot-separated part of name.
func QuoteQualified(name string, quote func(string) string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = quote(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// Flatten returns the bind arguments of rows[start:end] in row order.
func Flatten(rows [][]any, start, end int) []any {
	if end <= start {
		return nil
	}
	args := make([]any, 0, (end-start)*len(rows[start]))
	for _, r := range rows[start:end] {
		args = append(args, r...)
	}
	return args
}
