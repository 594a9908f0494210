package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ohler55/ojg/oj"

	"brokereye/app/interfaces"
)

// Synonym maps a boolean-like field to words, so searching "custom" finds rows
// whose isCustom flag is true.
type Synonym struct {
	Field string
	True  string
	False string
}

// SearchStage keeps records where one searchable field contains the whole
// query, case-insensitively, or where the query equals a synonym word.
// The query is never split into words or operators.
type SearchStage struct {
	query    string
	needle   string
	fields   []FieldRef
	synonyms []Synonym
	name     string
}

// NewSearchStage creates a search stage. No fields means every field.
func NewSearchStage(query string, fields []string, synonyms ...Synonym) *SearchStage {
	q := strings.TrimSpace(query)
	s := &SearchStage{
		query:    q,
		needle:   strings.ToLower(q),
		synonyms: synonyms,
		name:     "search",
	}
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			s.fields = append(s.fields, ParseFieldRef(f))
		}
	}
	return s
}

// Empty reports whether the query matches everything
func (s *SearchStage) Empty() bool { return s.query == "" }

// Execute keeps matching records
func (s *SearchStage) Execute(input *StageResult) (*StageResult, error) {
	if s.Empty() {
		return input, nil
	}
	out := make([]*Record, 0, len(input.Records))
	for _, r := range input.Records {
		if s.Match(r) {
			out = append(out, r)
		}
	}
	return &StageResult{Fields: input.Fields, Records: out}, nil
}

// Match evaluates the query against one record
func (s *SearchStage) Match(r *Record) bool {
	term := s.needle
	if term == "" {
		return true
	}
	if r == nil {
		return false
	}
	if len(s.fields) > 0 {
		for _, f := range s.fields {
			if v, ok := f.Value(r); ok && containsFold(v, term) {
				return true
			}
		}
	} else {
		for _, v := range r.Fields {
			if containsFold(v, term) {
				return true
			}
		}
	}
	for _, syn := range s.synonyms {
		v, ok := r.Get(syn.Field)
		if !ok {
			continue
		}
		b, ok := interfaces.BoolLike(v)
		if !ok {
			continue
		}
		word := syn.False
		if b {
			word = syn.True
		}
		if word != "" && strings.ToLower(word) == term {
			return true
		}
	}
	return false
}

func containsFold(v any, lowerTerm string) bool {
	var s string
	switch t := v.(type) {
	case map[string]any, []any:
		s = oj.JSON(t)
	default:
		s = interfaces.ToString(v)
	}
	return strings.Contains(strings.ToLower(s), lowerTerm)
}

// CanCache returns true if this stage can be cached
func (s *SearchStage) CanCache() bool { return true }

// CacheKey returns a unique key for caching
func (s *SearchStage) CacheKey() string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.String()
	}
	sort.Strings(names)
	syns := make([]string, len(s.synonyms))
	for i, syn := range s.synonyms {
		syns[i] = fmt.Sprintf("%s=%s/%s", syn.Field, syn.True, syn.False)
	}
	sort.Strings(syns)
	return fmt.Sprintf("%q:fields=%q:syn=%q", s.query, names, syns)
}

// Name returns the stage name
func (s *SearchStage) Name() string { return s.name }

// EstimateOutputSize estimates output size
func (s *SearchStage) EstimateOutputSize() float64 { return 0.3 }
