package query

import (
	"fmt"
	"sort"
	"strings"

	"brokereye/app/interfaces"
)

// ColumnFilter is a per-column predicate. The set of implementations is
// closed: CheckboxFilter, NumericFilter and TextFilter.
type ColumnFilter interface {
	// Column returns the field the filter applies to
	Column() string
	// Active reports whether the filter is complete enough to apply
	Active() bool
	// Match evaluates the filter; it never panics on malformed values
	Match(r *Record) bool

	match(r *Record, ref FieldRef) bool
	cacheKey() string
}

// NumericOp is a numeric comparison operator
type NumericOp int

const (
	NumEq NumericOp = iota
	NumNe
	NumLt
	NumLte
	NumGt
	NumGte
	NumBetween
)

var numericOpNames = map[NumericOp]string{
	NumEq: "eq", NumNe: "ne", NumLt: "lt", NumLte: "lte", NumGt: "gt", NumGte: "gte", NumBetween: "between",
}

// String returns the string representation of NumericOp
func (o NumericOp) String() string { return numericOpNames[o] }

// ParseNumericOp accepts the operator names and their symbols
func ParseNumericOp(s string) (NumericOp, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eq", "=", "==":
		return NumEq, true
	case "ne", "!=", "<>":
		return NumNe, true
	case "lt", "<":
		return NumLt, true
	case "lte", "<=":
		return NumLte, true
	case "gt", ">":
		return NumGt, true
	case "gte", ">=":
		return NumGte, true
	case "between", "..":
		return NumBetween, true
	}
	return 0, false
}

// TextOp is a text comparison operator
type TextOp int

const (
	TextEq TextOp = iota
	TextNe
	TextStartsWith
	TextEndsWith
	TextContains
	TextNotContains
)

var textOpNames = map[TextOp]string{
	TextEq: "eq", TextNe: "ne", TextStartsWith: "startswith", TextEndsWith: "endswith",
	TextContains: "contains", TextNotContains: "notcontains",
}

// String returns the string representation of TextOp
func (o TextOp) String() string { return textOpNames[o] }

// ParseTextOp accepts the operator names in any case
func ParseTextOp(s string) (TextOp, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for op, name := range textOpNames {
		if name == key {
			return op, true
		}
	}
	return 0, false
}

// CheckboxFilter keeps records whose value is one of Allowed.
type CheckboxFilter struct {
	Field   string
	Allowed []any
}

func (f CheckboxFilter) Column() string { return f.Field }
func (f CheckboxFilter) Active() bool   { return len(f.Allowed) > 0 }

// boolMode reports whether every allowed value is boolean-like, in which case
// both sides compare as booleans.
func (f CheckboxFilter) boolMode() bool {
	for _, a := range f.Allowed {
		if _, ok := interfaces.BoolLike(a); !ok {
			return false
		}
	}
	return len(f.Allowed) > 0
}

func (f CheckboxFilter) Match(r *Record) bool { return f.match(r, ParseFieldRef(f.Field)) }

func (f CheckboxFilter) match(r *Record, ref FieldRef) bool {
	v, ok := ref.Value(r)
	if !ok {
		v = nil
	}
	if f.boolMode() {
		b, ok := interfaces.BoolLike(v)
		if !ok {
			return false
		}
		for _, a := range f.Allowed {
			if ab, _ := interfaces.BoolLike(a); ab == b {
				return true
			}
		}
		return false
	}
	k := interfaces.NormalizeKey(v)
	for _, a := range f.Allowed {
		if interfaces.NormalizeKey(a) == k {
			return true
		}
	}
	return false
}

func (f CheckboxFilter) cacheKey() string {
	vals := make([]string, len(f.Allowed))
	for i, a := range f.Allowed {
		vals[i] = interfaces.NormalizeKey(a)
	}
	sort.Strings(vals)
	return fmt.Sprintf("cb:%s=%q:bool=%t", f.Field, vals, f.boolMode())
}

// NumericFilter compares the coerced numeric value of a field. Values that do
// not coerce never match.
type NumericFilter struct {
	Field string
	Op    NumericOp
	V1    float64
	V2    *float64 // upper bound for Between
}

func (f NumericFilter) Column() string { return f.Field }

// Active is false for a Between without its second bound
func (f NumericFilter) Active() bool {
	return f.Op != NumBetween || f.V2 != nil
}

func (f NumericFilter) Match(r *Record) bool { return f.match(r, ParseFieldRef(f.Field)) }

func (f NumericFilter) match(r *Record, ref FieldRef) bool {
	v, ok := ref.Value(r)
	if !ok {
		return false
	}
	x, ok := interfaces.ToNumber(v)
	if !ok {
		return false
	}
	switch f.Op {
	case NumEq:
		return x == f.V1
	case NumNe:
		return x != f.V1
	case NumLt:
		return x < f.V1
	case NumLte:
		return x <= f.V1
	case NumGt:
		return x > f.V1
	case NumGte:
		return x >= f.V1
	case NumBetween:
		if f.V2 == nil {
			return true
		}
		lo, hi := f.V1, *f.V2
		if lo > hi {
			lo, hi = hi, lo
		}
		return lo <= x && x <= hi
	}
	return false
}

func (f NumericFilter) cacheKey() string {
	if f.V2 != nil {
		return fmt.Sprintf("num:%s:%s:%g:%g", f.Field, f.Op, f.V1, *f.V2)
	}
	return fmt.Sprintf("num:%s:%s:%g", f.Field, f.Op, f.V1)
}

// TextFilter compares trimmed string forms. nil and missing values read as "".
type TextFilter struct {
	Field         string
	Op            TextOp
	Needle        string
	CaseSensitive bool
}

func (f TextFilter) Column() string { return f.Field }

// Active is false for an empty needle
func (f TextFilter) Active() bool { return strings.TrimSpace(f.Needle) != "" }

func (f TextFilter) Match(r *Record) bool { return f.match(r, ParseFieldRef(f.Field)) }

func (f TextFilter) match(r *Record, ref FieldRef) bool {
	v, _ := ref.Value(r)
	hay := fold(strings.TrimSpace(interfaces.ToString(v)), f.CaseSensitive)
	needle := fold(strings.TrimSpace(f.Needle), f.CaseSensitive)
	switch f.Op {
	case TextEq:
		return hay == needle
	case TextNe:
		return hay != needle
	case TextStartsWith:
		return strings.HasPrefix(hay, needle)
	case TextEndsWith:
		return strings.HasSuffix(hay, needle)
	case TextContains:
		return strings.Contains(hay, needle)
	case TextNotContains:
		return !strings.Contains(hay, needle)
	}
	return false
}

func (f TextFilter) cacheKey() string {
	return fmt.Sprintf("txt:%s:%s:%q:cs=%t", f.Field, f.Op, strings.TrimSpace(f.Needle), f.CaseSensitive)
}

// ColumnFilterStage ANDs all active column filters
type ColumnFilterStage struct {
	filters []ColumnFilter
	refs    []FieldRef
	name    string
}

// NewColumnFilterStage keeps only the active filters
func NewColumnFilterStage(filters ...ColumnFilter) *ColumnFilterStage {
	stage := &ColumnFilterStage{name: "columns"}
	for _, f := range filters {
		if f != nil && f.Active() {
			stage.filters = append(stage.filters, f)
			stage.refs = append(stage.refs, ParseFieldRef(f.Column()))
		}
	}
	return stage
}

// HasActive reports whether any filter survived
func (c *ColumnFilterStage) HasActive() bool { return len(c.filters) > 0 }

// Execute keeps records matching every filter
func (c *ColumnFilterStage) Execute(input *StageResult) (*StageResult, error) {
	if len(c.filters) == 0 {
		return input, nil
	}
	out := make([]*Record, 0, len(input.Records))
	for _, r := range input.Records {
		if c.matchAll(r) {
			out = append(out, r)
		}
	}
	return &StageResult{Fields: input.Fields, Records: out}, nil
}

func (c *ColumnFilterStage) matchAll(r *Record) bool {
	for i, f := range c.filters {
		if !f.match(r, c.refs[i]) {
			return false
		}
	}
	return true
}

// CanCache returns true if this stage can be cached
func (c *ColumnFilterStage) CanCache() bool { return true }

// CacheKey is order-independent since filters are ANDed
func (c *ColumnFilterStage) CacheKey() string {
	keys := make([]string, len(c.filters))
	for i, f := range c.filters {
		keys[i] = f.cacheKey()
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

// Name returns the stage name
func (c *ColumnFilterStage) Name() string { return c.name }

// EstimateOutputSize estimates output size
func (c *ColumnFilterStage) EstimateOutputSize() float64 { return 0.5 }
