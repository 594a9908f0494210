package query

import (
	"strings"

	"brokereye/app/interfaces"
)

// Type aliases to interfaces package to avoid duplication and circular dependencies
type ProgressCallback = interfaces.ProgressCallback
type Record = interfaces.Record
type StageResult = interfaces.StageResult

// PipelineStage represents a single stage in the query pipeline
type PipelineStage interface {
	// Execute processes the input data and returns a stage result
	Execute(input *StageResult) (*StageResult, error)

	// CanCache returns true if this stage's results can be cached
	CanCache() bool

	// CacheKey returns a unique key for caching this stage's results
	CacheKey() string

	// Name returns the stage name for progress reporting
	Name() string

	// EstimateOutputSize estimates the output size relative to input (0.0-1.0+)
	EstimateOutputSize() float64
}

// groupDependent is implemented by stages whose output changes when a group
// is mutated, even though their own key does not.
type groupDependent interface {
	GroupDependent() bool
}

// QueryResult contains the final result of pipeline execution
type QueryResult struct {
	Fields  []string
	Records []*Record
	Total   int64
	Cached  bool
}

// SortDirection represents sort order
type SortDirection int

const (
	SortAsc SortDirection = iota
	SortDesc
)

// String returns the string representation of SortDirection
func (d SortDirection) String() string {
	if d == SortDesc {
		return "desc"
	}
	return "asc"
}

// ParseSortDirection accepts "asc"/"desc" in any case; anything else is ascending.
func ParseSortDirection(s string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return SortDesc
	}
	return SortAsc
}

// SortSpec selects at most one sort column.
type SortSpec struct {
	Column    string
	Direction SortDirection
}

// CacheConfig controls caching behavior
type CacheConfig struct {
	EnablePipelineCache bool
	EnableStageCache    bool
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{EnablePipelineCache: true, EnableStageCache: true}
}

// CacheConfigFromSettings creates cache config based on user settings
func CacheConfigFromSettings(enableCache bool) CacheConfig {
	return CacheConfig{EnablePipelineCache: enableCache, EnableStageCache: enableCache}
}
