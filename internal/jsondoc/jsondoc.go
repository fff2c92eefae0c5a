// Package jsondoc provides helpers for walking loosely typed JSON-LD documents.
// Documents are decoded into generic maps so fields that are not modeled
// survive a read, modify, write cycle unchanged.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Doc is a decoded JSON object
type Doc = map[string]interface{}

// Decode parses raw bytes into a Doc, numbers are kept as json.Number
func Decode(raw []byte) (Doc, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	doc := Doc{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Contexts returns the @context entries that are strings.
// A single string context is returned as a one entry slice.
func Contexts(doc Doc) []string {
	switch c := doc["@context"].(type) {
	case string:
		return []string{c}
	case []interface{}:
		out := []string{}
		for _, e := range c {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Object returns v as a Doc. A single element array is unwrapped.
func Object(v interface{}) Doc {
	switch o := v.(type) {
	case map[string]interface{}:
		return o
	case []interface{}:
		if len(o) > 0 {
			if d, ok := o[0].(map[string]interface{}); ok {
				return d
			}
		}
	}
	return nil
}

// Array returns v as a slice, a lone object is returned as a one entry slice
func Array(v interface{}) []interface{} {
	switch a := v.(type) {
	case []interface{}:
		return a
	case map[string]interface{}:
		return []interface{}{a}
	}
	return nil
}

// String returns the string value of key, or "" when missing or not a string
func String(d Doc, key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// Int returns the integer value of key
func Int(d Doc, key string) (int, bool) {
	if d == nil {
		return 0, false
	}
	return toInt(d[key])
}

// Ints converts an array of numbers, non-numeric entries are skipped
func Ints(v interface{}) []int {
	out := []int{}
	for _, e := range Array(v) {
		if i, ok := toInt(e); ok {
			out = append(out, i)
		}
	}
	return out
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			f, err := n.Float64()
			if err != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// Label flattens a IIIF label into a single string.
// Presentation 2 labels are strings or arrays of strings/@value objects,
// Presentation 3 labels are language maps.
func Label(v interface{}) string {
	switch l := v.(type) {
	case string:
		return l
	case []interface{}:
		for _, e := range l {
			if s := Label(e); s != "" {
				return s
			}
		}
	case map[string]interface{}:
		if s, ok := l["@value"].(string); ok {
			return s
		}
		for _, lang := range []string{"none", "en"} {
			if s := Label(l[lang]); s != "" {
				return s
			}
		}
		// remaining languages in key order so the choice is stable
		langs := make([]string, 0, len(l))
		for lang := range l {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			if s := Label(l[lang]); s != "" {
				return s
			}
		}
	}
	return ""
}

// MarshalPretty encodes with a four space indent and without HTML escaping.
// Map keys are sorted by encoding/json so output is deterministic.
func MarshalPretty(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// Marshal encodes compactly without HTML escaping
func Marshal(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
