package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"brokereye/app/aggregate"
	"brokereye/app/cache"
	"brokereye/app/groups"
	"brokereye/app/interfaces"
	"brokereye/app/query"
	"brokereye/app/worker"
)

var tracer = otel.Tracer("brokereye/view")

// DefaultOffloadThreshold is the record count from which totals go to the pool
const DefaultOffloadThreshold = 5000

// Mode tells how totals were computed
type Mode string

const (
	ModeInline    Mode = "inline"
	ModeOffloaded Mode = "offloaded"
)

// Option configures an Engine
type Option func(*Engine)

// WithCache enables pipeline caching. Group mutations invalidate every
// group-dependent entry.
func WithCache(c *cache.Cache, cfg query.CacheConfig) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheConfig = cfg
	}
}

// WithWorker offloads large computations to client
func WithWorker(client *worker.Client) Option {
	return func(e *Engine) { e.client = client }
}

// WithOffloadThreshold sets the record count at which work is offloaded
func WithOffloadThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.offloadThreshold = n
		}
	}
}

// WithRetryInline retries a failed offloaded computation inline once
func WithRetryInline(retry bool) Option {
	return func(e *Engine) { e.retryInline = retry }
}

// WithStatsOptions sets the aggregation field map and sign convention
func WithStatsOptions(opts aggregate.Options) Option {
	return func(e *Engine) { e.statsOptions = opts }
}

// WithDedupOptions sets the dedup key and thresholds
func WithDedupOptions(opts query.DedupOptions) Option {
	return func(e *Engine) { e.dedupOptions = opts }
}

// WithKeyField sets the field group membership is tested on. Empty uses the
// canonical Record.Key.
func WithKeyField(field string) Option {
	return func(e *Engine) { e.keyField = field }
}

// WithTimeFields marks extra columns to sort as timestamps
func WithTimeFields(fields ...string) Option {
	return func(e *Engine) { e.timeFields = fields }
}

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine evaluates views over record sets for named consumers. Each consumer
// has at most one active group; everything else arrives with the Query.
type Engine struct {
	store    *groups.Store
	registry *groups.ActiveFilterRegistry
	gens     *worker.Generations

	cache       *cache.Cache
	cacheConfig query.CacheConfig
	client      *worker.Client

	offloadThreshold int
	retryInline      bool
	statsOptions     aggregate.Options
	dedupOptions     query.DedupOptions
	keyField         string
	timeFields       []string
	logger           *slog.Logger
}

// NewEngine wires an engine around store
func NewEngine(store *groups.Store, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		registry:         store.Registry(),
		gens:             worker.NewGenerations(),
		offloadThreshold: DefaultOffloadThreshold,
		retryInline:      true,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dedupOptions.Logger == nil {
		e.dedupOptions.Logger = e.logger
	}
	if e.cache != nil {
		c := e.cache
		store.OnChange(func(ev groups.ChangeEvent) {
			n := c.InvalidateGroupDependent(fmt.Sprintf("group %s %s", ev.Name, ev.Kind))
			e.logger.Debug("group change invalidated cache", "group", ev.Name, "change", ev.Kind.String(), "removed", n)
		})
	}
	return e
}

// Store returns the group store
func (e *Engine) Store() *groups.Store { return e.store }

// Registry returns the active filter registry
func (e *Engine) Registry() *groups.ActiveFilterRegistry { return e.registry }

// Query describes one view request
type Query struct {
	// Consumer selects the active group and the staleness counter
	Consumer     string
	ScopeField   string
	ScopeValues  []any
	Filters      []query.ColumnFilter
	Search       string
	SearchFields []string
	Synonyms     []query.Synonym
	Sort         query.SortSpec
	Limit        int
	SkipDedup    bool
	Progress     query.ProgressCallback
}

// Result is a computed view
type Result struct {
	Fields  []string
	Records []*interfaces.Record
	Total   int64
	Cached  bool
	// Group is the active group applied, empty for none
	Group string
	Dedup *query.DedupReport
	// Generation tags the request; see IsCurrent
	Generation uint64
	Totals     *aggregate.Totals
	Mode       Mode
}

// IsCurrent reports whether r is still the newest result requested for consumer
func (e *Engine) IsCurrent(consumer string, r *Result) bool {
	return r != nil && e.gens.IsCurrent(consumer, r.Generation)
}

func (e *Engine) membership(consumer string) (query.Membership, string) {
	g, ok := e.registry.ActiveGroup(consumer)
	if !ok {
		return nil, ""
	}
	return g, g.Name
}

func (e *Engine) dedupFor(ds *interfaces.Dataset, q Query) *query.DedupStage {
	if q.SkipDedup {
		return nil
	}
	opts := e.dedupOptions
	if opts.Source == "" {
		opts.Source = ds.Source
	}
	return query.NewDedupStage(opts)
}

// Apply runs scope, group, column filters, search, dedup, sort and limit on the
// calling goroutine. Results are cached when the dataset has an id.
func (e *Engine) Apply(ctx context.Context, ds *interfaces.Dataset, q Query) (*Result, error) {
	if ds == nil {
		return nil, errors.New("view: nil dataset")
	}
	gen := e.gens.Next(q.Consumer)
	ctx, span := tracer.Start(ctx, "view.Apply")
	defer span.End()

	m, groupName := e.membership(q.Consumer)
	span.SetAttributes(
		attribute.String("view.consumer", q.Consumer),
		attribute.String("view.group", groupName),
		attribute.Int("view.input", len(ds.Records)),
	)

	dedup := e.dedupFor(ds, q)
	res, err := query.NewPipelineBuilder(ctx, ds.ID, e.cache, q.Progress, e.cacheConfig).
		WithLogger(e.logger).
		AddScope(q.ScopeField, q.ScopeValues).
		AddGroup(m, e.keyField).
		AddColumnFilters(q.Filters...).
		AddSearch(q.Search, q.SearchFields, q.Synonyms...).
		AddDedupStage(dedup).
		AddSort(q.Sort, e.timeFields...).
		AddLimit(q.Limit).
		Build().
		Execute(&query.StageResult{Fields: ds.Fields, Records: ds.Records})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("apply view: %w", err)
	}
	span.SetAttributes(attribute.Int("view.output", len(res.Records)), attribute.Bool("view.cached", res.Cached))

	out := &Result{
		Fields:     res.Fields,
		Records:    res.Records,
		Total:      res.Total,
		Cached:     res.Cached,
		Group:      groupName,
		Generation: gen,
		Mode:       ModeInline,
	}
	if dedup != nil {
		if rep, ok := dedup.Report(); ok {
			out.Dedup = &rep
		}
	}
	return out, nil
}

// Totals aggregates records inline below the offload threshold and on the
// worker pool at or above it. A failed offload is retried inline when
// RetryInline is set.
func (e *Engine) Totals(ctx context.Context, records []*interfaces.Record) (aggregate.Totals, Mode, error) {
	ctx, span := tracer.Start(ctx, "view.Totals")
	defer span.End()
	span.SetAttributes(attribute.Int("view.records", len(records)))

	if !e.shouldOffload(len(records)) {
		t, err := aggregate.ComputeContext(ctx, records, e.statsOptions)
		return t, ModeInline, err
	}

	t, err := e.client.Stats(ctx, records, e.statsOptions)
	if err == nil {
		return t, ModeOffloaded, nil
	}
	span.RecordError(err)
	if !e.retryInline || ctx.Err() != nil {
		span.SetStatus(codes.Error, err.Error())
		return aggregate.Totals{}, ModeOffloaded, err
	}
	e.logger.Warn("offloaded totals failed, retrying inline", "records", len(records), "error", err)
	t, err = aggregate.ComputeContext(ctx, records, e.statsOptions)
	return t, ModeInline, err
}

// Evaluate computes a view and its totals. Large inputs run the whole chain
// on the worker pool, which bypasses the cache; smaller ones use Apply.
func (e *Engine) Evaluate(ctx context.Context, ds *interfaces.Dataset, q Query) (*Result, error) {
	if ds == nil {
		return nil, errors.New("view: nil dataset")
	}
	if !e.shouldOffload(len(ds.Records)) {
		res, err := e.Apply(ctx, ds, q)
		if err != nil {
			return nil, err
		}
		t, mode, err := e.Totals(ctx, res.Records)
		if err != nil {
			return nil, fmt.Errorf("view totals: %w", err)
		}
		res.Totals, res.Mode = &t, mode
		return res, nil
	}

	gen := e.gens.Next(q.Consumer)
	ctx, span := tracer.Start(ctx, "view.Evaluate")
	defer span.End()

	m, groupName := e.membership(q.Consumer)
	payload := worker.PipelinePayload{
		Records:      ds.Records,
		Fields:       ds.Fields,
		ScopeField:   q.ScopeField,
		ScopeValues:  q.ScopeValues,
		Group:        m,
		KeyField:     e.keyField,
		Filters:      q.Filters,
		Search:       q.Search,
		SearchFields: q.SearchFields,
		Synonyms:     q.Synonyms,
		Sort:         q.Sort,
		TimeFields:   e.timeFields,
		Limit:        q.Limit,
		WithTotals:   true,
		StatsOptions: e.statsOptions,
	}
	if !q.SkipDedup {
		opts := e.dedupOptions
		if opts.Source == "" {
			opts.Source = ds.Source
		}
		payload.Dedup = &opts
	}

	pr, err := e.client.Pipeline(ctx, payload)
	if err != nil {
		span.RecordError(err)
		if !e.retryInline || ctx.Err() != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		e.logger.Warn("offloaded view failed, retrying inline", "consumer", q.Consumer, "error", err)
		res, aerr := e.Apply(ctx, ds, q)
		if aerr != nil {
			return nil, aerr
		}
		t, terr := aggregate.ComputeContext(ctx, res.Records, e.statsOptions)
		if terr != nil {
			return nil, fmt.Errorf("view totals: %w", terr)
		}
		res.Totals, res.Mode = &t, ModeInline
		return res, nil
	}

	return &Result{
		Fields:     pr.Fields,
		Records:    pr.Records,
		Total:      int64(len(pr.Records)),
		Group:      groupName,
		Dedup:      pr.Dedup,
		Generation: gen,
		Totals:     pr.Totals,
		Mode:       ModeOffloaded,
	}, nil
}

func (e *Engine) shouldOffload(n int) bool {
	return e.client != nil && n >= e.offloadThreshold
}
