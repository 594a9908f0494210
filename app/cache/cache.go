package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"brokereye/app/interfaces"
)

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRegisterer registers cache metrics on reg. Without it the metrics are
// still counted but never exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) { c.registerer = reg }
}

// Cache provides byte-bounded LRU caching for pipeline results
type Cache struct {
	storage     map[string]*CacheEntry
	maxSize     int64
	currentSize int64
	lru         *lruList
	mutex       sync.RWMutex
	logger      *slog.Logger

	// Performance counters
	pipelineHits int64
	stageHits    int64
	misses       int64

	registerer prometheus.Registerer
	requests   *prometheus.CounterVec

	// Keys whose result depends on group membership
	groupDependentKeys map[string]bool
	depsMutex          sync.Mutex

	flight singleflight.Group
}

// NewCache creates a new cache
func NewCache(maxSize int64, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheMaxSize
	}
	c := &Cache{
		storage:            make(map[string]*CacheEntry),
		maxSize:            maxSize,
		lru:                newLRUList(),
		logger:             slog.Default(),
		groupDependentKeys: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.requests = promauto.With(c.registerer).NewCounterVec(prometheus.CounterOpts{
		Name: "brokereye_cache_requests_total",
		Help: "Pipeline cache lookups by result.",
	}, []string{"result"})
	return c
}

// Get retrieves a cache entry and marks it as recently used
func (c *Cache) Get(key string) (*CacheEntry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.storage[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		c.requests.WithLabelValues("miss").Inc()
		return nil, false
	}

	// Keys with a single stage segment are complete pipelines for a dataset
	// with no intermediate stages worth distinguishing.
	if ExtractStageCount(key) <= 1 {
		atomic.AddInt64(&c.pipelineHits, 1)
		c.requests.WithLabelValues("pipeline_hit").Inc()
	} else {
		atomic.AddInt64(&c.stageHits, 1)
		c.requests.WithLabelValues("stage_hit").Inc()
	}
	c.logger.Debug("cache hit", "key", key, "records", len(entry.Records), "size", entry.Size)

	entry.AccessTime = time.Now().Unix()
	c.lru.touch(key)
	return entry, true
}

// Store adds or replaces an entry. Records are shared, so only pointer
// overhead and field names count toward the size limit.
func (c *Cache) Store(key string, fields []string, records []*interfaces.Record) {
	size := calculateEntrySize(key, fields, len(records))

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if size > c.maxSize {
		c.logger.Debug("cache entry rejected", "key", key, "size", size, "max", c.maxSize)
		return
	}
	if existing, ok := c.storage[key]; ok {
		c.currentSize -= existing.Size
		c.lru.remove(key)
		delete(c.storage, key)
	}
	if !c.evictToMakeSpace(size) {
		return
	}

	now := time.Now()
	c.storage[key] = &CacheEntry{
		Fields:     fields,
		Records:    records,
		Size:       size,
		AccessTime: now.Unix(),
		CreateTime: now,
	}
	c.currentSize += size
	c.lru.touch(key)
}

// Do returns the cached entry for key or computes it once, even when many
// callers ask for the same key concurrently. The shared compute runs on a
// context detached from any one caller; each caller stops waiting when its
// own ctx is done.
func (c *Cache) Do(ctx context.Context, key string, compute func(context.Context) (*interfaces.StageResult, error)) (*interfaces.StageResult, bool, error) {
	if entry, ok := c.Get(key); ok {
		return &interfaces.StageResult{Fields: entry.Fields, Records: entry.Records}, true, nil
	}
	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		res, err := compute(detached)
		if err != nil {
			return nil, err
		}
		c.Store(key, res.Fields, res.Records)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.(*interfaces.StageResult), r.Shared, nil
	}
}

// Size returns the current cache size in bytes
func (c *Cache) Size() int64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.currentSize
}

// MaxSize returns the maximum cache size
func (c *Cache) MaxSize() int64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.maxSize
}

// EntryCount returns the number of cached entries
func (c *Cache) EntryCount() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.storage)
}

// MarkGroupDependent records that key embeds group membership.
func (c *Cache) MarkGroupDependent(key string) {
	c.depsMutex.Lock()
	c.groupDependentKeys[key] = true
	c.depsMutex.Unlock()
}

// InvalidateGroupDependent drops every group-dependent entry. Called on any
// group store mutation.
func (c *Cache) InvalidateGroupDependent(reason string) int {
	c.depsMutex.Lock()
	keys := make([]string, 0, len(c.groupDependentKeys))
	for key := range c.groupDependentKeys {
		keys = append(keys, key)
	}
	c.groupDependentKeys = make(map[string]bool)
	c.depsMutex.Unlock()

	if len(keys) == 0 {
		return 0
	}

	c.mutex.Lock()
	removed := 0
	for _, key := range keys {
		if _, ok := c.storage[key]; ok {
			c.removeLocked(key)
			removed++
		}
	}
	c.mutex.Unlock()

	c.logger.Debug("invalidated group-dependent cache entries", "removed", removed, "reason", reason)
	return removed
}

// GetCacheStats returns detailed cache statistics
func (c *Cache) GetCacheStats() CacheStats {
	c.depsMutex.Lock()
	deps := len(c.groupDependentKeys)
	c.depsMutex.Unlock()

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	stats := CacheStats{
		TotalEntries:      len(c.storage),
		TotalSize:         c.currentSize,
		MaxSize:           c.maxSize,
		UsagePercent:      float64(c.currentSize) / float64(c.maxSize) * 100,
		StageStats:        make(map[string]StageStats),
		PipelineCacheHits: atomic.LoadInt64(&c.pipelineHits),
		StageCacheHits:    atomic.LoadInt64(&c.stageHits),
		CacheMisses:       atomic.LoadInt64(&c.misses),
		GroupDependent:    deps,
	}
	total := stats.PipelineCacheHits + stats.StageCacheHits + stats.CacheMisses
	if total > 0 {
		stats.HitRate = float64(stats.PipelineCacheHits+stats.StageCacheHits) / float64(total)
	}
	for key, entry := range c.storage {
		if name := ExtractStageNameFromKey(key); name != "" {
			s := stats.StageStats[name]
			s.EntryCount++
			s.TotalSize += entry.Size
			stats.StageStats[name] = s
		}
	}
	return stats
}

// evictToMakeSpace must be called with mutex held.
func (c *Cache) evictToMakeSpace(neededSize int64) bool {
	if neededSize > c.maxSize {
		return false
	}
	for c.currentSize+neededSize > c.maxSize {
		if c.lru.len() == 0 {
			return c.currentSize+neededSize <= c.maxSize
		}
		oldest := c.lru.removeOldest()
		if entry, ok := c.storage[oldest]; ok {
			delete(c.storage, oldest)
			c.currentSize -= entry.Size
			c.logger.Debug("cache evict", "key", oldest, "size", entry.Size, "remaining", c.currentSize)
		}
	}
	return true
}

func (c *Cache) removeLocked(key string) {
	if entry, ok := c.storage[key]; ok {
		delete(c.storage, key)
		c.currentSize -= entry.Size
		c.lru.remove(key)
	}
}

// calculateEntrySize counts the key, the field names and one pointer per record.
func calculateEntrySize(key string, fields []string, recordCount int) int64 {
	size := int64(len(key)) + 64
	for _, f := range fields {
		size += int64(len(f)) + 16
	}
	size += int64(recordCount) * 8
	return size
}
