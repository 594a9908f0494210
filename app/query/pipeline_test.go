package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokereye/app/cache"
	"brokereye/app/interfaces"
)

// loginSet is a minimal Membership with a revision bumped on every change
type loginSet struct {
	ids map[string]bool
	rev int
}

func (m *loginSet) IsMember(key any) bool { return m.ids[interfaces.NormalizeKey(key)] }
func (m *loginSet) CacheKey() string      { return fmt.Sprintf("set@%d", m.rev) }

func accounts(n int) *StageResult {
	data := make([]map[string]any, n)
	for i := range data {
		data[i] = map[string]any{"login": i + 1, "equity": float64((i * 37) % 100), "currency": []string{"USD", "EUR"}[i%2]}
	}
	return &StageResult{Fields: []string{"login", "equity", "currency"}, Records: rows("login", data...)}
}

func TestPipelineOrderAndComposition(t *testing.T) {
	input := accounts(40)
	group := &loginSet{ids: map[string]bool{}}
	for i := 1; i <= 30; i++ {
		group.ids[fmt.Sprint(i)] = true
	}

	p := NewPipelineBuilder(context.Background(), "", nil, nil, DefaultCacheConfig()).
		AddScope("currency", []any{"USD"}).
		AddGroup(group, "").
		AddColumnFilters(NumericFilter{Field: "equity", Op: NumGte, V1: 50}).
		AddSearch("", nil).
		AddDedup(DedupOptions{}).
		AddSort(SortSpec{Column: "equity", Direction: SortDesc}).
		Build()

	names := make([]string, 0)
	for _, s := range p.GetStages() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"scope", "group", "columns", "dedup", "sort"}, names)

	res, err := p.Execute(input)
	require.NoError(t, err)

	// brute-force the same predicate
	var want []*Record
	for _, r := range input.Records {
		eq, _ := interfaces.ToNumber(r.Fields["equity"])
		if r.Fields["currency"] == "USD" && group.IsMember(r.Key) && eq >= 50 {
			want = append(want, r)
		}
	}
	assert.Len(t, res.Records, len(want))
	assert.Equal(t, int64(len(want)), res.Total)
	for i := 1; i < len(res.Records); i++ {
		prev, _ := interfaces.ToNumber(res.Records[i-1].Fields["equity"])
		cur, _ := interfaces.ToNumber(res.Records[i].Fields["equity"])
		assert.GreaterOrEqual(t, prev, cur)
	}
	for _, r := range res.Records {
		assert.Equal(t, "USD", r.Fields["currency"])
		assert.True(t, group.IsMember(r.Key))
	}
}

func TestPipelineCachesAndInvalidatesOnGroupChange(t *testing.T) {
	c := cache.NewCache(1 << 20)
	input := accounts(20)
	group := &loginSet{ids: map[string]bool{"1": true, "2": true}, rev: 1}

	build := func() *QueryPipeline {
		return NewPipelineBuilder(context.Background(), "ds1", c, nil, DefaultCacheConfig()).
			AddGroup(group, "").
			AddSort(SortSpec{Column: "login"}).
			Build()
	}

	first, err := build().Execute(input)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, []string{"1", "2"}, keys(first.Records))

	second, err := build().Execute(input)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, keys(first.Records), keys(second.Records))

	// mutate the group; the stale entries must go even though a caller could
	// still hold the old key
	group.ids["3"] = true
	group.rev++
	removed := c.InvalidateGroupDependent("group updated")
	assert.Positive(t, removed)
	assert.Zero(t, c.GetCacheStats().GroupDependent)

	third, err := build().Execute(input)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, []string{"1", "2", "3"}, keys(third.Records))
}

func TestPipelineWithoutDatasetIDSkipsCache(t *testing.T) {
	c := cache.NewCache(1 << 20)
	p := NewPipelineBuilder(context.Background(), "", c, nil, DefaultCacheConfig()).
		AddSort(SortSpec{Column: "equity"}).
		Build()
	_, err := p.Execute(accounts(5))
	require.NoError(t, err)
	assert.Zero(t, c.EntryCount())
}

func TestPipelineStageCacheReusesPrefix(t *testing.T) {
	c := cache.NewCache(1 << 20)
	input := accounts(10)
	cfg := CacheConfig{EnableStageCache: true}

	_, err := NewPipelineBuilder(context.Background(), "ds2", c, nil, cfg).
		AddScope("currency", []any{"EUR"}).
		AddSort(SortSpec{Column: "equity"}).
		Build().Execute(input)
	require.NoError(t, err)
	assert.Equal(t, 2, c.EntryCount())

	var stages []string
	progress := func(stage string, current, total int64, message string) {
		stages = append(stages, stage)
	}
	_, err = NewPipelineBuilder(context.Background(), "ds2", c, progress, cfg).
		AddScope("currency", []any{"EUR"}).
		AddSort(SortSpec{Column: "equity", Direction: SortDesc}).
		Build().Execute(input)
	require.NoError(t, err)

	stats := c.GetCacheStats()
	assert.EqualValues(t, 1, stats.PipelineCacheHits+stats.StageCacheHits)
	assert.EqualValues(t, 3, stats.CacheMisses)
	assert.Equal(t, 3, c.EntryCount())
	assert.Equal(t, []string{"scope", "sort", "sort"}, stages)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPipelineBuilder(ctx, "", nil, nil, DefaultCacheConfig()).
		AddSort(SortSpec{Column: "equity"}).
		Build()
	_, err := p.Execute(accounts(3))
	assert.ErrorIs(t, err, context.Canceled)
}

type failingStage struct{}

func (failingStage) Execute(*StageResult) (*StageResult, error) { return nil, errors.New("boom") }
func (failingStage) CanCache() bool                             { return true }
func (failingStage) CacheKey() string                           { return "x" }
func (failingStage) Name() string                               { return "failing" }
func (failingStage) EstimateOutputSize() float64                { return 1 }

func TestPipelineStageErrorIsNotCached(t *testing.T) {
	c := cache.NewCache(1 << 20)
	p := NewQueryPipeline(context.Background(), "ds3", c, nil, DefaultCacheConfig())
	p.AddStage(failingStage{})

	_, err := p.Execute(accounts(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage failing failed")
	assert.Zero(t, c.EntryCount())
}

func TestPipelineConcurrentIdenticalQueries(t *testing.T) {
	c := cache.NewCache(1 << 20)
	input := accounts(200)

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := NewPipelineBuilder(context.Background(), "ds4", c, nil, DefaultCacheConfig()).
				AddSort(SortSpec{Column: "equity"}).
				Build().Execute(input)
			if err == nil {
				results[i] = keys(res.Records)
			}
		}(i)
	}
	wg.Wait()
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

// gatedStage blocks until release is closed
type gatedStage struct {
	started chan struct{}
	release chan struct{}
	once    *sync.Once
}

func (g gatedStage) Execute(in *StageResult) (*StageResult, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return in, nil
}
func (gatedStage) CanCache() bool              { return true }
func (gatedStage) CacheKey() string            { return "gate" }
func (gatedStage) Name() string                { return "gate" }
func (gatedStage) EstimateOutputSize() float64 { return 1 }

func TestPipelineSharedQuerySurvivesCancelledCaller(t *testing.T) {
	c := cache.NewCache(1 << 20)
	gate := gatedStage{started: make(chan struct{}), release: make(chan struct{}), once: &sync.Once{}}
	input := accounts(10)

	ctxA, cancelA := context.WithCancel(context.Background())
	pa := NewQueryPipeline(ctxA, "ds5", c, nil, DefaultCacheConfig())
	pa.AddStage(gate)
	errA := make(chan error, 1)
	go func() {
		_, err := pa.Execute(input)
		errA <- err
	}()
	<-gate.started

	pb := NewQueryPipeline(context.Background(), "ds5", c, nil, DefaultCacheConfig())
	pb.AddStage(gate)
	type outcome struct {
		res *QueryResult
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := pb.Execute(input)
		doneB <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(gate.release)

	b := <-doneB
	require.NoError(t, b.err)
	assert.Len(t, b.res.Records, 10)
}

func TestBuildCacheKeyEscapesSeparators(t *testing.T) {
	key := BuildCacheKey("ds", []PipelineStage{NewSearchStage("a|b", nil)})
	assert.Equal(t, 1, cache.ExtractStageCount(key))
	assert.Equal(t, "search", cache.ExtractStageNameFromKey(key))
}
