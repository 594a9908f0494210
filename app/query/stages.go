package query

import (
	"fmt"
	"sort"
	"strings"

	"brokereye/app/interfaces"
)

// ScopeStage is the hard tenant/IB boundary: only records whose field value is
// in Values survive. Values compare in canonical key form.
type ScopeStage struct {
	field  FieldRef
	values map[string]struct{}
	name   string
}

// NewScopeStage creates a scope stage
func NewScopeStage(field string, values []any) *ScopeStage {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k := interfaces.NormalizeKey(v); k != "" {
			set[k] = struct{}{}
		}
	}
	return &ScopeStage{field: ParseFieldRef(field), values: set, name: "scope"}
}

// Execute keeps records inside the scope
func (s *ScopeStage) Execute(input *StageResult) (*StageResult, error) {
	if len(s.values) == 0 {
		return input, nil
	}
	out := make([]*Record, 0, len(input.Records))
	for _, r := range input.Records {
		v, ok := s.field.Value(r)
		if !ok {
			continue
		}
		if _, in := s.values[interfaces.NormalizeKey(v)]; in {
			out = append(out, r)
		}
	}
	return &StageResult{Fields: input.Fields, Records: out}, nil
}

// CanCache returns true if this stage can be cached
func (s *ScopeStage) CanCache() bool { return true }

// CacheKey returns a unique key for caching
func (s *ScopeStage) CacheKey() string {
	vals := make([]string, 0, len(s.values))
	for v := range s.values {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return fmt.Sprintf("%s=%q", s.field, vals)
}

// Name returns the stage name
func (s *ScopeStage) Name() string { return s.name }

// EstimateOutputSize estimates output size
func (s *ScopeStage) EstimateOutputSize() float64 { return 0.5 }

// Membership decides whether a key belongs to the active group.
// *groups.Group satisfies it.
type Membership interface {
	IsMember(key any) bool
	CacheKey() string
}

// GroupStage keeps records whose key is a member of the active group. The
// membership is a snapshot taken when the pipeline is built.
type GroupStage struct {
	membership Membership
	keyField   string
	name       string
}

// NewGroupStage creates a group stage. An empty keyField uses Record.Key.
func NewGroupStage(m Membership, keyField string) *GroupStage {
	return &GroupStage{membership: m, keyField: keyField, name: "group"}
}

// Execute filters by group membership
func (g *GroupStage) Execute(input *StageResult) (*StageResult, error) {
	if g.membership == nil {
		return input, nil
	}
	out := make([]*Record, 0, len(input.Records))
	for _, r := range input.Records {
		var key any = r.Key
		if g.keyField != "" {
			v, ok := r.Get(g.keyField)
			if !ok {
				continue
			}
			key = v
		}
		if g.membership.IsMember(key) {
			out = append(out, r)
		}
	}
	return &StageResult{Fields: input.Fields, Records: out}, nil
}

// CanCache returns true if this stage can be cached
func (g *GroupStage) CanCache() bool { return true }

// CacheKey includes the group revision so any mutation yields a new key
func (g *GroupStage) CacheKey() string {
	if g.membership == nil {
		return "none"
	}
	return fmt.Sprintf("%s:key=%s", g.membership.CacheKey(), g.keyField)
}

// GroupDependent marks results downstream of this stage for invalidation
func (g *GroupStage) GroupDependent() bool { return true }

// Name returns the stage name
func (g *GroupStage) Name() string { return g.name }

// EstimateOutputSize estimates output size
func (g *GroupStage) EstimateOutputSize() float64 { return 0.1 }

// LimitStage truncates the result, standing in for pagination
type LimitStage struct {
	count int
	name  string
}

// NewLimitStage creates a new limit stage
func NewLimitStage(count int) *LimitStage {
	return &LimitStage{count: count, name: "limit"}
}

// Execute returns at most count records
func (l *LimitStage) Execute(input *StageResult) (*StageResult, error) {
	records := input.Records
	if l.count > 0 && l.count < len(records) {
		records = records[:l.count:l.count]
	}
	return &StageResult{Fields: input.Fields, Records: records}, nil
}

// CanCache returns true if this stage can be cached
func (l *LimitStage) CanCache() bool { return true }

// CacheKey returns a unique key for caching
func (l *LimitStage) CacheKey() string { return fmt.Sprintf("%d", l.count) }

// Name returns the stage name
func (l *LimitStage) Name() string { return l.name }

// EstimateOutputSize is unknown without the input size
func (l *LimitStage) EstimateOutputSize() float64 { return -1 }

// fold lower-cases s unless caseSensitive
func fold(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}
