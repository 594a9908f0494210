package fileloader

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// parseJSON accepts a single document (array or object) or a stream of
// concatenated values such as JSON Lines. The record array is located with
// opts.JSONPath; nested objects stay nested so column paths can reach them.
func parseJSON(data []byte, opts Options) (*table, []string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var (
		warnings []string
		doc      any
		err      error
	)
	if isJSONStream(data) {
		doc, err = parseJSONStream(data)
	} else {
		doc, err = oj.Parse(data)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if opts.JSONPath != "" && opts.JSONPath != "$" {
		x, err := jp.ParseString(opts.JSONPath)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid JSONPath %q: %w", opts.JSONPath, err)
		}
		found := x.Get(doc)
		switch {
		case len(found) == 0:
			return nil, nil, fmt.Errorf("JSONPath %q matched nothing", opts.JSONPath)
		case len(found) == 1:
			doc = found[0]
		default:
			doc = found
		}
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, nil, fmt.Errorf("JSON root must be an object or an array, got %T", doc)
	}

	t := &table{rows: make([]map[string]any, 0, len(items))}
	seen := make(map[string]struct{})
	skipped := 0
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		for k := range obj {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				t.fields = append(t.fields, k)
			}
		}
		t.rows = append(t.rows, obj)
	}
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d non-object entries skipped", skipped))
	}
	sort.Strings(t.fields)
	return t, warnings, nil
}

// parseJSONStream parses concatenated JSON values one at a time. Top-level
// arrays are spliced in.
func parseJSONStream(data []byte) ([]any, error) {
	var out []any
	for pos := 0; pos < len(data); {
		for pos < len(data) && isJSONSpace(data[pos]) {
			pos++
		}
		if pos >= len(data) {
			break
		}
		end := findJSONValueEnd(data, pos)
		if end <= pos {
			return out, fmt.Errorf("unterminated JSON value at offset %d", pos)
		}
		v, err := oj.Parse(data[pos:end])
		if err != nil {
			return out, fmt.Errorf("invalid JSON value at offset %d: %w", pos, err)
		}
		if arr, ok := v.([]any); ok {
			out = append(out, arr...)
		} else {
			out = append(out, v)
		}
		pos = end
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no JSON values found")
	}
	return out, nil
}

// isJSONStream reports whether anything but whitespace follows the first
// top-level value.
func isJSONStream(data []byte) bool {
	start := 0
	for start < len(data) && isJSONSpace(data[start]) {
		start++
	}
	if start >= len(data) {
		return false
	}
	end := findJSONValueEnd(data, start)
	if end < 0 {
		return false
	}
	for _, b := range data[end:] {
		if !isJSONSpace(b) {
			return true
		}
	}
	return false
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// findJSONValueEnd returns the offset just past the object or array starting
// at start, or -1 if it never closes.
func findJSONValueEnd(data []byte, start int) int {
	if data[start] != '{' && data[start] != '[' {
		return -1
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
