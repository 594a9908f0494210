package query

import (
	"fmt"
	"sort"
	"strings"

	"brokereye/app/interfaces"
	"brokereye/app/timestamps"
)

// SortStage orders records by one column. Missing values always sink to the
// bottom; the sort is stable and never reorders its input slice.
type SortStage struct {
	spec       SortSpec
	field      FieldRef
	timeFields []string // columns to treat as timestamps besides detected ones
	name       string
}

// NewSortStage creates a sort stage
func NewSortStage(spec SortSpec, timeFields ...string) *SortStage {
	return &SortStage{
		spec:       spec,
		field:      ParseFieldRef(spec.Column),
		timeFields: timeFields,
		name:       "sort",
	}
}

// sortKey holds the pre-computed comparison forms of one value
type sortKey struct {
	missing bool
	num     float64
	numOK   bool
	ms      int64
	msOK    bool
	str     string
}

// Execute sorts a copy of the input
func (s *SortStage) Execute(input *StageResult) (*StageResult, error) {
	if s.spec.Column == "" || len(input.Records) < 2 {
		return input, nil
	}

	isTime := s.isTimeColumn(input.Fields)
	loc := timestamps.GetDefaultIngestTimezone()

	type item struct {
		rec *Record
		key sortKey
	}
	items := make([]item, len(input.Records))
	for i, r := range input.Records {
		v, present := s.field.Value(r)
		k := sortKey{missing: interfaces.IsMissing(v, present)}
		if !k.missing {
			k.num, k.numOK = interfaces.ToNumber(v)
			if isTime && !k.numOK {
				k.ms, k.msOK = timestamps.ValueToMillis(v, loc)
			}
			k.str = strings.ToLower(interfaces.ToString(v))
		}
		items[i] = item{rec: r, key: k}
	}

	desc := s.spec.Direction == SortDesc
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].key, items[j].key
		if a.missing || b.missing {
			// missing sinks regardless of direction
			return !a.missing && b.missing
		}
		cmp := compareKeys(a, b)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})

	out := make([]*Record, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return &StageResult{Fields: input.Fields, Records: out}, nil
}

// compareKeys prefers numeric, then timestamp, then case-insensitive string order
func compareKeys(a, b sortKey) int {
	switch {
	case a.numOK && b.numOK:
		return cmpOrdered(a.num, b.num)
	case a.msOK && b.msOK:
		return cmpOrdered(a.ms, b.ms)
	default:
		return strings.Compare(a.str, b.str)
	}
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (s *SortStage) isTimeColumn(fields []string) bool {
	col := s.spec.Column
	for _, tf := range s.timeFields {
		if strings.EqualFold(tf, col) {
			return true
		}
	}
	if s.field.Path != "" {
		return false
	}
	if detected := timestamps.DetectTimestampField(fields); detected != "" && strings.EqualFold(detected, col) {
		return true
	}
	return timestamps.IsTimestampField(col)
}

// CanCache returns true if this stage can be cached
func (s *SortStage) CanCache() bool { return true }

// CacheKey returns a unique key for caching
func (s *SortStage) CacheKey() string {
	return fmt.Sprintf("col=%s:dir=%s:time=%s", s.spec.Column, s.spec.Direction, strings.Join(s.timeFields, ","))
}

// Name returns the stage name
func (s *SortStage) Name() string { return s.name }

// EstimateOutputSize estimates output size (sorting doesn't change row count)
func (s *SortStage) EstimateOutputSize() float64 { return 1.0 }
