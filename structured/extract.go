package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Extract scans text for balanced-brace object literals and parses each
// one. Prose around and between objects is ignored, as are candidates
// that fail to parse. Results come back in the order they appear; the
// last one is usually the model's final word.
func Extract(text string) []Result {
	var out []Result
	n := len(text)
	for i := 0; i < n; {
		if text[i] != '{' {
			i++
			continue
		}

		depth := 1
		end := i + 1
		for end < n && depth > 0 {
			switch text[end] {
			case '{':
				depth++
			case '}':
				depth--
			}
			end++
		}

		if depth == 0 {
			if r, err := parseObject([]byte(text[i:end])); err == nil {
				out = append(out, r)
			}
		}
		i = end
	}
	return out
}

// Last returns the final object found in text.
func Last(text string) (Result, bool) {
	found := Extract(text)
	if len(found) == 0 {
		return Result{}, false
	}
	return found[len(found)-1], true
}

// parseObject decodes a single JSON object, preserving key order.
func parseObject(data []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Result{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Result{}, fmt.Errorf("expected object, got %v", tok)
	}

	var r Result
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Result{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Result{}, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Result{}, err
		}
		r.Set(key, rawString(raw))
	}

	if _, err := dec.Token(); err != nil {
		return Result{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Result{}, errors.New("trailing data after object")
	}
	if r.values == nil {
		r.values = map[string]string{}
	}
	return r, nil
}

// rawString renders a JSON value as text: strings unquoted, null as
// empty, everything else compacted.
func rawString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, string(trimmed) == "null":
		return ""
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return strings.TrimSpace(string(trimmed))
	}
	return buf.String()
}
