// Package structured turns free-form model output into flat key/value
// results and combines several results into one.
package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NoAnswer is the marker a model emits when a unit of text holds no
// answer to the question.
const NoAnswer = "NOANSWER"

// Result is a flat mapping from field name to value. Field order is the
// order in which keys were first seen, so prompts and merges built from a
// Result are deterministic.
type Result struct {
	keys   []string
	values map[string]string
}

// NewResult builds a Result from alternating key/value pairs.
// A trailing key without a value is ignored.
func NewResult(kv ...string) Result {
	var r Result
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set assigns value to key, keeping the key's original position if it
// already exists.
func (r *Result) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r Result) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in order.
func (r Result) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r Result) Len() int { return len(r.keys) }

// Map returns a copy of the fields as a plain map.
func (r Result) Map() map[string]string {
	m := make(map[string]string, len(r.keys))
	for _, k := range r.keys {
		m[k] = r.values[k]
	}
	return m
}

// Equal reports whether both results hold the same fields in the same
// order.
func (r Result) Equal(o Result) bool {
	if len(r.keys) != len(o.keys) {
		return false
	}
	for i, k := range r.keys {
		if o.keys[i] != k || o.values[k] != r.values[k] {
			return false
		}
	}
	return true
}

// HasNoAnswer reports whether any field is blank or carries the NoAnswer
// marker. An empty result counts as no answer.
func (r Result) HasNoAnswer() bool {
	if len(r.keys) == 0 {
		return true
	}
	for _, k := range r.keys {
		if IsNoAnswer(r.values[k]) {
			return true
		}
	}
	return false
}

// Compact returns a copy without blank or NoAnswer fields.
func (r Result) Compact() Result {
	var out Result
	for _, k := range r.keys {
		v := r.values[k]
		if IsNoAnswer(v) {
			continue
		}
		out.Set(k, v)
	}
	return out
}

// String flattens the result into "Key: value" lines, skipping blank
// values.
func (r Result) String() string {
	var b strings.Builder
	for _, k := range r.keys {
		v := r.values[k]
		if strings.TrimSpace(v) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return b.String()
}

// MarshalJSON encodes the result as a JSON object in field order.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. Non-string
// values are stored in their compact JSON form.
func (r *Result) UnmarshalJSON(data []byte) error {
	parsed, err := parseObject(data)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// IsNoAnswer reports whether a field value should be treated as absent.
func IsNoAnswer(v string) bool {
	return strings.TrimSpace(v) == "" || strings.Contains(v, NoAnswer)
}
