package view

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokereye/app/aggregate"
	"brokereye/app/cache"
	"brokereye/app/groups"
	"brokereye/app/interfaces"
	"brokereye/app/query"
	"brokereye/app/worker"
)

func dataset(id string, n int) *interfaces.Dataset {
	data := make([]map[string]any, n)
	for i := range data {
		data[i] = map[string]any{
			"login":      i + 1,
			"balance":    float64((i*31)%1000) + 0.5,
			"equity":     (i * 17) % 500,
			"percentage": i % 40,
			"dailyPnL":   i%11 - 5,
			"name":       fmt.Sprintf("client-%d", i+1),
		}
	}
	return &interfaces.Dataset{
		ID:      id,
		Source:  "accounts.csv",
		Fields:  []string{"login", "balance", "equity", "percentage", "dailyPnL", "name"},
		Records: interfaces.NewRecords(data, "login"),
	}
}

func logins(recs []*interfaces.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key
	}
	return out
}

func seq(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprint(i))
	}
	return out
}

func newWorker(t *testing.T, opts ...worker.Option) *worker.Client {
	t.Helper()
	pool := worker.NewPool(opts...)
	pool.Start(context.Background())
	c := worker.NewClient(pool, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestScenarioRangeGroupActiveForConsumer(t *testing.T) {
	store := groups.NewStore()
	require.True(t, store.CreateRangeGroup("Range1to30", "1", "30"))
	require.True(t, store.Registry().SetActiveFilter("accounts", "Range1to30"))

	e := NewEngine(store)
	res, err := e.Apply(context.Background(), dataset("", 40), Query{Consumer: "accounts", Sort: query.SortSpec{Column: "login"}})
	require.NoError(t, err)
	assert.Equal(t, seq(1, 30), logins(res.Records))
	assert.Equal(t, "Range1to30", res.Group)

	// a consumer without an active group sees everything
	res, err = e.Apply(context.Background(), dataset("", 40), Query{Consumer: "positions"})
	require.NoError(t, err)
	assert.Len(t, res.Records, 40)
	assert.Empty(t, res.Group)
}

func TestScenarioManualGroupDedupAndUniqueness(t *testing.T) {
	store := groups.NewStore()
	require.True(t, store.CreateGroup("VIP", []string{"10", "20", "20"}))
	assert.False(t, store.CreateGroup("VIP", []string{"5"}))

	g, err := store.Get("VIP")
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "20"}, g.IDs)
	assert.Equal(t, 1, store.Len())

	require.True(t, store.Registry().SetActiveFilter("accounts", "VIP"))
	res, err := NewEngine(store).Apply(context.Background(), dataset("", 40), Query{Consumer: "accounts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "20"}, logins(res.Records))
}

func TestScenarioNumericBetween(t *testing.T) {
	ds := &interfaces.Dataset{
		Fields: []string{"login", "percentage"},
		Records: interfaces.NewRecords([]map[string]any{
			{"login": 1, "percentage": 5},
			{"login": 2, "percentage": 15},
			{"login": 3, "percentage": 25},
		}, "login"),
	}
	hi := 20.0
	res, err := NewEngine(groups.NewStore()).Apply(context.Background(), ds, Query{
		Filters: []query.ColumnFilter{query.NumericFilter{Field: "percentage", Op: query.NumBetween, V1: 10, V2: &hi}},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 15, res.Records[0].Fields["percentage"])
}

func TestScenarioRenameSwitchesKindAndFollowsConsumer(t *testing.T) {
	store := groups.NewStore()
	require.True(t, store.CreateGroup("A", []string{"7", "8"}))
	require.True(t, store.Registry().SetActiveFilter("accounts", "A"))

	require.True(t, store.UpdateGroup("A", "B", nil, &groups.Range{From: 1, To: 5}))
	name, ok := store.Registry().GetActiveFilter("accounts")
	require.True(t, ok)
	assert.Equal(t, "B", name)

	res, err := NewEngine(store).Apply(context.Background(), dataset("", 40), Query{Consumer: "accounts"})
	require.NoError(t, err)
	assert.Equal(t, seq(1, 5), logins(res.Records))
	assert.Equal(t, "B", res.Group)
}

func TestGroupMutationInvalidatesCachedView(t *testing.T) {
	store := groups.NewStore()
	require.True(t, store.CreateGroup("G", []string{"1", "2"}))
	require.True(t, store.Registry().SetActiveFilter("accounts", "G"))

	c := cache.NewCache(1 << 20)
	e := NewEngine(store, WithCache(c, query.DefaultCacheConfig()))
	ds := dataset("ds-1", 10)
	q := Query{Consumer: "accounts", Sort: query.SortSpec{Column: "login"}}

	first, err := e.Apply(context.Background(), ds, q)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.NotNil(t, first.Dedup)

	second, err := e.Apply(context.Background(), ds, q)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Nil(t, second.Dedup)

	require.True(t, store.UpdateGroup("G", "G", []string{"1", "2", "3"}, nil))
	assert.Zero(t, c.GetCacheStats().GroupDependent)

	third, err := e.Apply(context.Background(), ds, q)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, []string{"1", "2", "3"}, logins(third.Records))

	require.True(t, store.DeleteGroup("G"))
	fourth, err := e.Apply(context.Background(), ds, q)
	require.NoError(t, err)
	assert.Len(t, fourth.Records, 10)
}

func TestGenerationsRejectStaleResults(t *testing.T) {
	e := NewEngine(groups.NewStore())
	ds := dataset("", 5)

	older, err := e.Apply(context.Background(), ds, Query{Consumer: "accounts"})
	require.NoError(t, err)
	newer, err := e.Apply(context.Background(), ds, Query{Consumer: "accounts"})
	require.NoError(t, err)

	assert.False(t, e.IsCurrent("accounts", older))
	assert.True(t, e.IsCurrent("accounts", newer))
}

func TestTotalsInlineAndOffloadedAgree(t *testing.T) {
	ds := dataset("", 300)
	opts := aggregate.Options{Sign: aggregate.SignNegated}

	inline := NewEngine(groups.NewStore(), WithStatsOptions(opts))
	offloaded := NewEngine(groups.NewStore(), WithStatsOptions(opts), WithWorker(newWorker(t)), WithOffloadThreshold(100))

	a, modeA, err := inline.Totals(context.Background(), ds.Records)
	require.NoError(t, err)
	b, modeB, err := offloaded.Totals(context.Background(), ds.Records)
	require.NoError(t, err)

	assert.Equal(t, ModeInline, modeA)
	assert.Equal(t, ModeOffloaded, modeB)
	assert.Equal(t, a, b)

	// below the threshold the worker is not used
	_, mode, err := offloaded.Totals(context.Background(), ds.Records[:50])
	require.NoError(t, err)
	assert.Equal(t, ModeInline, mode)
}

func TestTotalsRetryInlineOnWorkerFailure(t *testing.T) {
	failing := newWorker(t, worker.WithHandler(worker.TaskCalculateStats, func(ctx context.Context, payload any) (any, error) {
		return nil, errors.New("worker unavailable")
	}))
	ds := dataset("", 200)

	e := NewEngine(groups.NewStore(), WithWorker(failing), WithOffloadThreshold(10))
	got, mode, err := e.Totals(context.Background(), ds.Records)
	require.NoError(t, err)
	assert.Equal(t, ModeInline, mode)
	assert.Equal(t, aggregate.Compute(ds.Records, aggregate.Options{}), got)

	strict := NewEngine(groups.NewStore(), WithWorker(failing), WithOffloadThreshold(10), WithRetryInline(false))
	_, _, err = strict.Totals(context.Background(), ds.Records)
	var taskErr *worker.TaskError
	assert.ErrorAs(t, err, &taskErr)
}

func TestEvaluateOffloadedMatchesInline(t *testing.T) {
	store := groups.NewStore()
	require.True(t, store.CreateRangeGroup("Low", "1", "400"))
	require.True(t, store.Registry().SetActiveFilter("accounts", "Low"))

	ds := dataset("", 600)
	q := Query{
		Consumer: "accounts",
		Filters:  []query.ColumnFilter{query.NumericFilter{Field: "percentage", Op: query.NumGte, V1: 10}},
		Search:   "client",
		Sort:     query.SortSpec{Column: "balance", Direction: query.SortDesc},
	}

	inline, err := NewEngine(store).Evaluate(context.Background(), ds, q)
	require.NoError(t, err)
	offloaded, err := NewEngine(store, WithWorker(newWorker(t)), WithOffloadThreshold(100)).Evaluate(context.Background(), ds, q)
	require.NoError(t, err)

	assert.Equal(t, ModeInline, inline.Mode)
	assert.Equal(t, ModeOffloaded, offloaded.Mode)
	assert.Equal(t, logins(inline.Records), logins(offloaded.Records))
	require.NotNil(t, inline.Totals)
	require.NotNil(t, offloaded.Totals)
	assert.Equal(t, *inline.Totals, *offloaded.Totals)
	assert.Equal(t, inline.Dedup, offloaded.Dedup)
}

func TestApplyNilDataset(t *testing.T) {
	_, err := NewEngine(groups.NewStore()).Apply(context.Background(), nil, Query{})
	assert.Error(t, err)
}
