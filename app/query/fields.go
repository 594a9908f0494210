package query

import (
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// FieldRef addresses a record field, optionally descending into a JSON or map
// value with a JSONPath written as column{$.path}.
type FieldRef struct {
	Column string
	Path   string
	expr   jp.Expr
}

// ParseFieldRef parses "column" or "column{$.path}". A path that fails to
// parse leaves the whole name as a plain column.
func ParseFieldRef(name string) FieldRef {
	name = strings.TrimSpace(name)
	open := strings.Index(name, "{")
	if open == -1 {
		return FieldRef{Column: name}
	}
	closeIdx := strings.LastIndex(name, "}")
	if closeIdx == -1 || closeIdx <= open {
		return FieldRef{Column: name}
	}
	column := strings.TrimSpace(name[:open])
	path := strings.TrimSpace(name[open+1 : closeIdx])
	if column == "" || path == "" {
		return FieldRef{Column: name}
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return FieldRef{Column: name}
	}
	return FieldRef{Column: column, Path: path, expr: expr}
}

// String returns the name the ref was parsed from.
func (f FieldRef) String() string {
	if f.Path == "" {
		return f.Column
	}
	return f.Column + "{" + f.Path + "}"
}

// Value reads the field from r. A path that matches nothing reports the field
// as absent.
func (f FieldRef) Value(r *Record) (any, bool) {
	v, ok := r.Get(f.Column)
	if !ok || f.expr == nil {
		return v, ok
	}

	var data any
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, false
		}
		parsed, err := oj.ParseString(t)
		if err != nil {
			return nil, false
		}
		data = parsed
	case map[string]any, []any:
		data = t
	default:
		return nil, false
	}

	results := f.expr.Get(data)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}
