package cli

import (
	"fmt"
	"strconv"
	"strings"

	"brokereye/app/query"
)

// parseNumericFilter reads "field:op:value" or "field:between:lo:hi".
func parseNumericFilter(s string) (query.ColumnFilter, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return nil, fmt.Errorf("numeric filter %q: want field:op:value", s)
	}
	op, ok := query.ParseNumericOp(parts[1])
	if !ok {
		return nil, fmt.Errorf("numeric filter %q: unknown operator %q", s, parts[1])
	}
	v1, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return nil, fmt.Errorf("numeric filter %q: %w", s, err)
	}
	f := query.NumericFilter{Field: parts[0], Op: op, V1: v1}
	if len(parts) == 4 {
		v2, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("numeric filter %q: %w", s, err)
		}
		f.V2 = &v2
	}
	return f, nil
}

// parseTextFilter reads "field:op:needle"; the needle may contain colons.
// A needle prefixed with "cs:" matches case sensitively, e.g. "name:eq:cs:Bob".
func parseTextFilter(s string) (query.ColumnFilter, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("text filter %q: want field:op:needle", s)
	}
	f := query.TextFilter{Field: parts[0], Needle: parts[2]}
	if rest, ok := strings.CutPrefix(parts[2], "cs:"); ok {
		f.CaseSensitive = true
		f.Needle = rest
	}
	op, ok := query.ParseTextOp(parts[1])
	if !ok {
		return nil, fmt.Errorf("text filter %q: unknown operator %q", s, parts[1])
	}
	f.Op = op
	return f, nil
}

// parseCheckboxFilter reads "field=a,b,c".
func parseCheckboxFilter(s string) (query.ColumnFilter, error) {
	field, values, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(field) == "" {
		return nil, fmt.Errorf("value filter %q: want field=v1,v2", s)
	}
	return query.CheckboxFilter{Field: strings.TrimSpace(field), Allowed: splitValues(values)}, nil
}

func splitValues(s string) []any {
	var out []any
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseSort reads "column" or "column:desc".
func parseSort(s string) query.SortSpec {
	if s == "" {
		return query.SortSpec{}
	}
	col, dir, _ := strings.Cut(s, ":")
	return query.SortSpec{Column: col, Direction: query.ParseSortDirection(dir)}
}

// parseSynonym reads "field=yes/no".
func parseSynonym(s string) (query.Synonym, error) {
	field, pair, ok := strings.Cut(s, "=")
	t, f, ok2 := strings.Cut(pair, "/")
	if !ok || !ok2 || field == "" {
		return query.Synonym{}, fmt.Errorf("synonym %q: want field=true_word/false_word", s)
	}
	return query.Synonym{Field: field, True: t, False: f}, nil
}
