package cache

import (
	"time"

	"brokereye/app/interfaces"
)

// CacheEntry represents a cached pipeline or stage result.
// Records are shared pointers into the source dataset and must be treated as
// read-only by every reader.
type CacheEntry struct {
	Fields     []string
	Records    []*interfaces.Record
	Size       int64
	AccessTime int64
	CreateTime time.Time
}

// CacheStats contains detailed cache statistics
type CacheStats struct {
	TotalEntries int
	TotalSize    int64
	MaxSize      int64
	UsagePercent float64
	StageStats   map[string]StageStats

	PipelineCacheHits int64 // Full pipeline cache hits
	StageCacheHits    int64 // Individual stage cache hits
	CacheMisses       int64
	HitRate           float64
	GroupDependent    int // keys invalidated on any group mutation
}

// StageStats contains statistics for a specific stage type
type StageStats struct {
	EntryCount int
	TotalSize  int64
}

// DefaultCacheMaxSize is the default cache size limit (100MB)
const DefaultCacheMaxSize = 100 * 1024 * 1024
