// Package config holds parser/storage option maps and the chart definition
// file format.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options is a free-form option map as decoded from YAML/JSON. Getters
// accept the loose shapes decoders produce (float64 for JSON numbers,
// int for YAML, strings for CLI overrides) and fall back to def when a key
// is absent or unusable.
type Options map[string]any

func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func (o Options) Bool(key string, def bool) bool {
	switch x := o[key].(type) {
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b
		}
	}
	return def
}

func (o Options) Int(key string, def int) int {
	switch x := o[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	}
	return def
}

func (o Options) Float(key string, def float64) float64 {
	switch x := o[key].(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return def
}

// Rune returns the first rune of a string option. "\t" and "tab" both mean
// a tab.
func (o Options) Rune(key string, def rune) rune {
	s, ok := o[key].(string)
	if !ok || s == "" {
		return def
	}
	switch s {
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

// StringMap returns a map option with string values.
func (o Options) StringMap(key string) map[string]string {
	out := make(map[string]string)
	switch x := o[key].(type) {
	case map[string]string:
		for k, v := range x {
			out[k] = v
		}
	case map[string]any:
		for k, v := range x {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// With returns a copy of o with key set to v.
func (o Options) With(key string, v any) Options {
	out := make(Options, len(o)+1)
	for k, x := range o {
		out[k] = x
	}
	out[key] = v
	return out
}
