package listcol

import (
	"errors"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Kind tags the outcome of parsing one cell.
type Kind uint8

const (
	Missing Kind = iota
	Scalar
	List
	Unparseable
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Scalar:
		return "scalar"
	case List:
		return "list"
	case Unparseable:
		return "unparseable"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Cell is the parsed form of one textual cell. Value is set for Scalar,
// Values for List. List elements that could not be coerced to a number are
// NaN.
type Cell struct {
	Kind   Kind
	Value  float64
	Values []float64
}

// ParseCell classifies s.
//
//	""  "None"  "null"  "nan"     -> Missing
//	"3.5"                         -> Scalar
//	"[1, 2]"  "['1', None, 3]"    -> List
//	"[1, x]"  "abc"  "[1"         -> Unparseable
//
// List literals are JSON arrays or Python-style sequences (single quotes,
// None/True/False, nan/inf). Nested sequences are kept as a NaN element.
func ParseCell(s string) Cell {
	s = strings.TrimSpace(s)
	if isMissingToken(s) {
		return Cell{Kind: Missing}
	}
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		if vals, ok := parseList(s); ok {
			return Cell{Kind: List, Values: vals}
		}
		return Cell{Kind: Unparseable}
	}
	if f, ok := parseFloat(s); ok {
		return Cell{Kind: Scalar, Value: f}
	}
	return Cell{Kind: Unparseable}
}

// IsMissing reports whether s, ignoring surrounding space, is one of the
// tokens that stand for a missing value.
func IsMissing(s string) bool {
	return isMissingToken(strings.TrimSpace(s))
}

func isMissingToken(s string) bool {
	switch s {
	case "", "None", "none", "null", "NULL", "nan", "NaN", "NA", "<NA>":
		return true
	}
	return false
}

func parseList(s string) ([]float64, bool) {
	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = coerce(v)
		}
		return out, true
	}
	return parseLiteral(s[1 : len(s)-1])
}

func coerce(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return coerceString(x)
	}
	return math.NaN()
}

func coerceString(s string) float64 {
	f, ok := parseFloat(strings.TrimSpace(s))
	if !ok {
		return math.NaN()
	}
	return f
}

// parseLiteral scans the body of a Python-style list literal.
func parseLiteral(body string) ([]float64, bool) {
	vals := make([]float64, 0, strings.Count(body, ",")+1)
	i := skipSpace(body, 0)
	for i < len(body) {
		var v float64
		switch c := body[i]; c {
		case '\'', '"':
			j := closingQuote(body, i)
			if j < 0 {
				return nil, false
			}
			v = coerceString(body[i+1 : j])
			i = j + 1
		case '[', '(':
			j := closingBracket(body, i)
			if j < 0 {
				return nil, false
			}
			v = math.NaN()
			i = j + 1
		default:
			j := strings.IndexByte(body[i:], ',')
			if j < 0 {
				j = len(body)
			} else {
				j += i
			}
			f, ok := parseBare(strings.TrimSpace(body[i:j]))
			if !ok {
				return nil, false
			}
			v = f
			i = j
		}
		vals = append(vals, v)

		i = skipSpace(body, i)
		if i == len(body) {
			break
		}
		if body[i] != ',' {
			return nil, false
		}
		i = skipSpace(body, i+1)
	}
	return vals, true
}

func parseBare(tok string) (float64, bool) {
	switch tok {
	case "":
		return 0, false
	case "None", "null":
		return math.NaN(), true
	case "True", "true":
		return 1, true
	case "False", "false":
		return 0, true
	}
	return parseFloat(tok)
}

// parseFloat accepts out-of-range values as ±Inf (or ±0 on underflow),
// which is what strconv.ParseFloat returns alongside ErrRange.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func closingQuote(s string, open int) int {
	q := s[open]
	for i := open + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return -1
}

func closingBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\'', '"':
			j := closingQuote(s, i)
			if j < 0 {
				return -1
			}
			i = j
		case '[', '(':
			depth++
		case ']', ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
