package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokereye/app/interfaces"
)

func records(n int) []*interfaces.Record {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"login": i}
	}
	return interfaces.NewRecords(rows, "login")
}

func TestStoreAndGet(t *testing.T) {
	c := NewCache(0)
	recs := records(3)
	c.Store("dataset:a|sort:x", []string{"login"}, recs)

	entry, ok := c.Get("dataset:a|sort:x")
	require.True(t, ok)
	assert.Same(t, recs[0], entry.Records[0])
	assert.Equal(t, []string{"login"}, entry.Fields)

	_, ok = c.Get("dataset:a|sort:y")
	assert.False(t, ok)

	stats := c.GetCacheStats()
	assert.Equal(t, int64(1), stats.PipelineCacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, 1, stats.StageStats["sort"].EntryCount)
}

func TestLRUEviction(t *testing.T) {
	one := calculateEntrySize("dataset:a|k:1", nil, 10)
	c := NewCache(one*2 + 1)

	c.Store("dataset:a|k:1", nil, records(10))
	c.Store("dataset:a|k:2", nil, records(10))
	// touch 1 so 2 becomes the oldest
	_, ok := c.Get("dataset:a|k:1")
	require.True(t, ok)
	c.Store("dataset:a|k:3", nil, records(10))

	_, ok = c.Get("dataset:a|k:2")
	assert.False(t, ok)
	_, ok = c.Get("dataset:a|k:1")
	assert.True(t, ok)
	_, ok = c.Get("dataset:a|k:3")
	assert.True(t, ok)
	assert.LessOrEqual(t, c.Size(), c.MaxSize())
}

func TestOversizedEntryRejected(t *testing.T) {
	c := NewCache(100)
	c.Store("dataset:a|k:1", nil, records(100))
	assert.Equal(t, 0, c.EntryCount())
	assert.Equal(t, int64(0), c.Size())
}

func TestInvalidateGroupDependent(t *testing.T) {
	c := NewCache(0)
	c.Store("dataset:a|group:VIP@1", nil, records(2))
	c.Store("dataset:a|group:VIP@1|sort:x", nil, records(2))
	c.Store("dataset:a|sort:x", nil, records(2))
	c.MarkGroupDependent("dataset:a|group:VIP@1")
	c.MarkGroupDependent("dataset:a|group:VIP@1|sort:x")

	assert.Equal(t, 2, c.InvalidateGroupDependent("test"))
	assert.Equal(t, 1, c.EntryCount())
	_, ok := c.Get("dataset:a|sort:x")
	assert.True(t, ok)
	assert.Equal(t, 0, c.GetCacheStats().GroupDependent)
	assert.Equal(t, 0, c.InvalidateGroupDependent("again"))
}

func TestDoCollapsesConcurrentComputes(t *testing.T) {
	c := NewCache(0)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := c.Do(context.Background(), "dataset:a|k:1", func(context.Context) (*interfaces.StageResult, error) {
				calls.Add(1)
				<-release
				return &interfaces.StageResult{Records: records(4)}, nil
			})
			assert.NoError(t, err)
			assert.Len(t, res.Records, 4)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// late arrivals may hit the cache instead of joining the flight
	assert.Equal(t, int32(1), calls.Load())
	_, cached, err := c.Do(context.Background(), "dataset:a|k:1", func(context.Context) (*interfaces.StageResult, error) {
		t.Fatal("should be cached")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestDoSurvivesFirstCallerCancel(t *testing.T) {
	c := NewCache(0)
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (*interfaces.StageResult, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &interfaces.StageResult{Records: records(3)}, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, _, err := c.Do(ctxA, "dataset:a|k:1", compute)
		errA <- err
	}()
	<-started

	type result struct {
		res *interfaces.StageResult
		err error
	}
	doneB := make(chan result, 1)
	go func() {
		res, _, err := c.Do(context.Background(), "dataset:a|k:1", func(context.Context) (*interfaces.StageResult, error) {
			t.Error("second caller must join the running compute")
			return nil, nil
		})
		doneB <- result{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(release)

	b := <-doneB
	require.NoError(t, b.err)
	assert.Len(t, b.res.Records, 3)
	assert.Equal(t, 1, c.EntryCount())
}

func TestDoDoesNotCacheErrors(t *testing.T) {
	c := NewCache(0)
	_, _, err := c.Do(context.Background(), "dataset:a|k:1", func(context.Context) (*interfaces.StageResult, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, c.EntryCount())
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCache(0, WithRegisterer(reg))
	c.Store("dataset:a|k:1", nil, records(1))
	c.Get("dataset:a|k:1")
	c.Get("dataset:a|k:2")
	c.Get("dataset:a|k:3|k:4")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("pipeline_hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("miss")))

	n, err := testutil.GatherAndCount(reg, "brokereye_cache_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "dataset:abc", DatasetKey("abc"))
	assert.Equal(t, "sort", ExtractStageNameFromKey("dataset:a|scope:1|sort:login:asc"))
	assert.Equal(t, "", ExtractStageNameFromKey("dataset:a"))
}
