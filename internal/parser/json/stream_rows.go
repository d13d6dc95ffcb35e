// Package json streams JSON documents of records into pooled rows.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	gojson "github.com/goccy/go-json"

	"plotprep/internal/config"
	"plotprep/internal/transformer"
)

// field is one key/value pair of a record, in document order.
type field struct {
	key string
	val any
}

// StreamJSONRows parses JSON from r and sends one pooled *transformer.Row
// per record on out.
//
// Accepted shapes:
//   - a root array of objects
//   - a root object holding an array of objects (envelope); the option
//     records_field names it, otherwise the first such field is used
//   - a single root object, which is one record
//   - newline-delimited objects, also after any of the above
//
// Columns are discovered in key order. onColumns is called with the full
// column list whenever it grows, before the first row that uses the new
// columns; rows sent earlier are shorter and should be padded by the
// receiver.
//
// Values: numbers become float64 where they fit, arrays and nested objects
// are kept as JSON text (so "[1,2,3]" stays a list cell) unless
// array_join_separator is set and the array holds only strings.
// header_map renames keys.
func StreamJSONRows(
	ctx context.Context,
	r io.Reader,
	opt config.Options,
	onColumns func(columns []string),
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	if onColumns == nil {
		onColumns = func([]string) {}
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()

	s := &streamer{
		ctx:       ctx,
		dec:       dec,
		out:       out,
		onColumns: onColumns,
		onErr:     onErr,
		headerMap: opt.StringMap("header_map"),
		joinSep:   opt.String("array_join_separator", ""),
		envelope:  strings.TrimSpace(opt.String("records_field", "")),
		index:     make(map[string]int),
	}
	return s.run()
}

type streamer struct {
	ctx       context.Context
	dec       *json.Decoder
	out       chan<- *transformer.Row
	onColumns func([]string)
	onErr     func(int, error)
	headerMap map[string]string
	joinSep   string
	envelope  string

	columns []string
	index   map[string]int
	line    int
}

func (s *streamer) run() error {
	for {
		tok, err := s.dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			s.report(err)
			return fmt.Errorf("json: read token: %w", err)
		}

		switch tok {
		case json.Delim('['):
			if err := s.streamArray(); err != nil {
				return err
			}
		case json.Delim('{'):
			if err := s.streamRootObject(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("json: unsupported root token %T (want object or array)", tok)
		}
	}
}

// streamArray emits each object of the current array; '[' is consumed.
func (s *streamer) streamArray() error {
	for s.dec.More() {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		tok, err := s.dec.Token()
		if err != nil {
			s.report(err)
			return fmt.Errorf("json: read array element: %w", err)
		}
		if tok == nil {
			continue
		}
		if tok != json.Delim('{') {
			s.report(fmt.Errorf("array element is not an object (got %v)", tok))
			if err := skipValue(s.dec, tok); err != nil {
				return err
			}
			continue
		}
		rec, err := readObject(s.dec)
		if err != nil {
			s.report(err)
			return err
		}
		if err := s.emit(rec); err != nil {
			return err
		}
	}
	return expectDelim(s.dec, ']')
}

// streamRootObject handles the envelope and single-record shapes; '{' is
// consumed.
func (s *streamer) streamRootObject() error {
	var single []field
	streamed := false
	for s.dec.More() {
		kt, err := s.dec.Token()
		if err != nil {
			s.report(err)
			return fmt.Errorf("json: read object key: %w", err)
		}
		key, _ := kt.(string)
		vt, err := s.dec.Token()
		if err != nil {
			s.report(err)
			return fmt.Errorf("json: read object value: %w", err)
		}

		if streamed {
			if err := skipValue(s.dec, vt); err != nil {
				return err
			}
			continue
		}
		if vt == json.Delim('[') && (s.envelope == "" || s.envelope == key) {
			ok, first, err := s.peekRecords()
			if err != nil {
				return err
			}
			if ok {
				streamed = true
				continue
			}
			single = append(single, field{key, first})
			continue
		}
		v, err := materialize(s.dec, vt)
		if err != nil {
			s.report(err)
			return err
		}
		single = append(single, field{key, v})
	}
	if err := expectDelim(s.dec, '}'); err != nil {
		return err
	}
	if streamed {
		return nil
	}
	if s.envelope != "" {
		s.report(fmt.Errorf("records field %q not found", s.envelope))
	}
	return s.emit(single)
}

// peekRecords looks at the first element of an array value ('[' consumed).
// If it is an object the whole array is streamed as records. Otherwise the
// array is read as a plain value and returned.
func (s *streamer) peekRecords() (bool, any, error) {
	if !s.dec.More() {
		if err := expectDelim(s.dec, ']'); err != nil {
			return false, nil, err
		}
		return false, []any{}, nil
	}
	tok, err := s.dec.Token()
	if err != nil {
		return false, nil, fmt.Errorf("json: read array element: %w", err)
	}
	if tok == json.Delim('{') {
		rec, err := readObject(s.dec)
		if err != nil {
			return false, nil, err
		}
		if err := s.emit(rec); err != nil {
			return false, nil, err
		}
		return true, nil, s.streamArray()
	}

	first, err := materialize(s.dec, tok)
	if err != nil {
		return false, nil, err
	}
	arr := []any{first}
	for s.dec.More() {
		vt, err := s.dec.Token()
		if err != nil {
			return false, nil, fmt.Errorf("json: read array element: %w", err)
		}
		v, err := materialize(s.dec, vt)
		if err != nil {
			return false, nil, err
		}
		arr = append(arr, v)
	}
	return false, arr, expectDelim(s.dec, ']')
}

func (s *streamer) emit(rec []field) error {
	s.line++
	grew := false
	for _, f := range rec {
		name := f.key
		if mapped, ok := s.headerMap[name]; ok && mapped != "" {
			name = mapped
		}
		if _, ok := s.index[name]; !ok {
			s.index[name] = len(s.columns)
			s.columns = append(s.columns, name)
			grew = true
		}
	}
	if grew {
		s.onColumns(append([]string(nil), s.columns...))
	}

	row := transformer.GetRow(len(s.columns))
	row.Line = s.line
	for _, f := range rec {
		name := f.key
		if mapped, ok := s.headerMap[name]; ok && mapped != "" {
			name = mapped
		}
		row.V[s.index[name]] = s.cellValue(f.val)
	}

	select {
	case s.out <- row:
		return nil
	case <-s.ctx.Done():
		row.Drop()
		return s.ctx.Err()
	}
}

func (s *streamer) report(err error) {
	if s.onErr != nil {
		s.onErr(s.line+1, err)
	}
}

// cellValue flattens a decoded JSON value into something a table column
// can hold.
func (s *streamer) cellValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		if s.joinSep != "" {
			if joined, ok := joinStrings(x, s.joinSep); ok {
				return joined
			}
		}
		return encode(x)
	case map[string]any:
		return encode(x)
	}
	return fmt.Sprint(v)
}

func joinStrings(arr []any, sep string) (string, bool) {
	ss := make([]string, 0, len(arr))
	for _, it := range arr {
		if it == nil {
			continue
		}
		str, ok := it.(string)
		if !ok {
			return "", false
		}
		ss = append(ss, str)
	}
	return strings.Join(ss, sep), true
}

func encode(v any) string {
	b, err := gojson.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// readObject reads an object body in key order; '{' is consumed.
func readObject(dec *json.Decoder) ([]field, error) {
	var rec []field
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read record key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("json: record key not a string (got %T)", kt)
		}
		vt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read record value: %w", err)
		}
		v, err := materialize(dec, vt)
		if err != nil {
			return nil, err
		}
		rec = append(rec, field{key, v})
	}
	return rec, expectDelim(dec, '}')
}

// materialize builds a Go value for the JSON value starting at tok.
func materialize(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		m := make(map[string]any)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested key: %w", err)
			}
			k, _ := kt.(string)
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested value: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, expectDelim(dec, '}')
	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested element: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, expectDelim(dec, ']')
	}
	return nil, fmt.Errorf("json: unexpected delimiter %q", d)
}

func skipValue(dec *json.Decoder, tok json.Token) error {
	_, err := materialize(dec, tok)
	return err
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if tok != want {
		return fmt.Errorf("json: expected %q, got %v", want, tok)
	}
	return nil
}
