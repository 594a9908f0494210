package query

import (
	"context"
	"fmt"
	"log/slog"

	"brokereye/app/cache"
)

// QueryPipeline orchestrates the execution of multiple pipeline stages
type QueryPipeline struct {
	stages      []PipelineStage
	cache       *cache.Cache
	progress    ProgressCallback
	ctx         context.Context
	datasetID   string // empty disables caching
	cacheConfig CacheConfig
	logger      *slog.Logger
}

// NewQueryPipeline creates a new query pipeline
func NewQueryPipeline(ctx context.Context, datasetID string, c *cache.Cache, progress ProgressCallback, config CacheConfig) *QueryPipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	if progress == nil {
		progress = NoOpProgressCallback
	}
	return &QueryPipeline{
		ctx:         ctx,
		datasetID:   datasetID,
		cache:       c,
		progress:    progress,
		cacheConfig: config,
		logger:      slog.Default(),
	}
}

// SetLogger replaces the pipeline logger
func (p *QueryPipeline) SetLogger(l *slog.Logger) {
	if l != nil {
		p.logger = l
	}
}

// AddStage adds a pipeline stage
func (p *QueryPipeline) AddStage(stage PipelineStage) {
	p.stages = append(p.stages, stage)
}

// Execute runs the pipeline with the given input data
func (p *QueryPipeline) Execute(input *StageResult) (*QueryResult, error) {
	if input == nil {
		input = &StageResult{}
	}
	if len(p.stages) == 0 {
		return &QueryResult{
			Fields:  input.Fields,
			Records: input.Records,
			Total:   int64(len(input.Records)),
		}, nil
	}

	if p.cacheEnabled() && p.cacheConfig.EnablePipelineCache && p.canCacheResult() {
		cacheKey := BuildCacheKey(p.datasetID, p.stages)
		// Mark before the lookup so the key is tracked on hits too
		if isGroupDependent(p.stages) {
			p.cache.MarkGroupDependent(cacheKey)
		}
		res, cached, err := p.cache.Do(p.ctx, cacheKey, func(ctx context.Context) (*StageResult, error) {
			return p.run(ctx, input)
		})
		if err != nil {
			return nil, err
		}
		return &QueryResult{
			Fields:  res.Fields,
			Records: res.Records,
			Total:   int64(len(res.Records)),
			Cached:  cached,
		}, nil
	}

	res, err := p.run(p.ctx, input)
	if err != nil {
		return nil, err
	}
	return &QueryResult{
		Fields:  res.Fields,
		Records: res.Records,
		Total:   int64(len(res.Records)),
	}, nil
}

// run executes stages sequentially with incremental per-stage caching
func (p *QueryPipeline) run(ctx context.Context, input *StageResult) (*StageResult, error) {
	tracker := NewProgressTracker(p.progress, len(p.stages))
	estimator := NewProgressEstimator(int64(len(input.Records)))
	current := input
	executed := make([]PipelineStage, 0, len(p.stages))

	for _, stage := range p.stages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		executed = append(executed, stage)
		useStageCache := p.cacheEnabled() && p.cacheConfig.EnableStageCache && stage.CanCache() && allCacheable(executed)
		stageKey := ""
		if useStageCache {
			stageKey = BuildCacheKey(p.datasetID, executed)
			if entry, found := p.cache.Get(stageKey); found {
				current = &StageResult{Fields: entry.Fields, Records: entry.Records}
				tracker.CompleteStage(stage.Name(), int64(len(entry.Records)))
				continue
			}
		}

		tracker.StartStage(stage.Name(), estimator.EstimateStageOutput(stage))
		next, err := stage.Execute(current)
		if err != nil {
			return nil, fmt.Errorf("stage %s failed: %w", stage.Name(), err)
		}
		if next.Fields == nil {
			next.Fields = current.Fields
		}

		if useStageCache {
			if isGroupDependent(executed) {
				p.cache.MarkGroupDependent(stageKey)
			}
			p.cache.Store(stageKey, next.Fields, next.Records)
		}

		current = next
		tracker.CompleteStage(stage.Name(), int64(len(next.Records)))
		if len(next.Records) > 0 {
			estimator = NewProgressEstimator(int64(len(next.Records)))
		}
	}
	p.logger.Debug("pipeline executed", "dataset", p.datasetID, "stages", len(p.stages),
		"input", len(input.Records), "output", len(current.Records))
	return current, nil
}

func (p *QueryPipeline) cacheEnabled() bool {
	return p.cache != nil && p.datasetID != ""
}

// canCacheResult determines if the pipeline result should be cached
func (p *QueryPipeline) canCacheResult() bool {
	return allCacheable(p.stages)
}

func allCacheable(stages []PipelineStage) bool {
	for _, stage := range stages {
		if !stage.CanCache() {
			return false
		}
	}
	return true
}

// GetStages returns a copy of the pipeline stages
func (p *QueryPipeline) GetStages() []PipelineStage {
	stages := make([]PipelineStage, len(p.stages))
	copy(stages, p.stages)
	return stages
}

// PipelineBuilder helps construct query pipelines in the canonical order
// scope, group, column filters, search, dedup, sort, limit.
type PipelineBuilder struct {
	pipeline *QueryPipeline
}

// NewPipelineBuilder creates a new pipeline builder
func NewPipelineBuilder(ctx context.Context, datasetID string, c *cache.Cache, progress ProgressCallback, cacheConfig CacheConfig) *PipelineBuilder {
	return &PipelineBuilder{pipeline: NewQueryPipeline(ctx, datasetID, c, progress, cacheConfig)}
}

// WithLogger sets the pipeline logger
func (b *PipelineBuilder) WithLogger(l *slog.Logger) *PipelineBuilder {
	b.pipeline.SetLogger(l)
	return b
}

// AddScope adds the hard scope pre-filter. Empty values add nothing.
func (b *PipelineBuilder) AddScope(field string, values []any) *PipelineBuilder {
	if field == "" || len(values) == 0 {
		return b
	}
	b.pipeline.AddStage(NewScopeStage(field, values))
	return b
}

// AddGroup adds the active-group stage. A nil membership adds nothing.
func (b *PipelineBuilder) AddGroup(m Membership, keyField string) *PipelineBuilder {
	if m == nil {
		return b
	}
	b.pipeline.AddStage(NewGroupStage(m, keyField))
	return b
}

// AddColumnFilters adds the AND of all column filters
func (b *PipelineBuilder) AddColumnFilters(filters ...ColumnFilter) *PipelineBuilder {
	stage := NewColumnFilterStage(filters...)
	if !stage.HasActive() {
		return b
	}
	b.pipeline.AddStage(stage)
	return b
}

// AddSearch adds the free-text search stage
func (b *PipelineBuilder) AddSearch(query string, fields []string, synonyms ...Synonym) *PipelineBuilder {
	stage := NewSearchStage(query, fields, synonyms...)
	if stage.Empty() {
		return b
	}
	b.pipeline.AddStage(stage)
	return b
}

// AddDedup adds the key-uniqueness guard
func (b *PipelineBuilder) AddDedup(opts DedupOptions) *PipelineBuilder {
	return b.AddDedupStage(NewDedupStage(opts))
}

// AddDedupStage adds a caller-owned dedup stage so its report can be read
// after execution
func (b *PipelineBuilder) AddDedupStage(d *DedupStage) *PipelineBuilder {
	if d != nil {
		b.pipeline.AddStage(d)
	}
	return b
}

// AddSort adds a sort stage. An empty column adds nothing.
func (b *PipelineBuilder) AddSort(spec SortSpec, timeFields ...string) *PipelineBuilder {
	if spec.Column == "" {
		return b
	}
	b.pipeline.AddStage(NewSortStage(spec, timeFields...))
	return b
}

// AddLimit adds a limit stage to the pipeline
func (b *PipelineBuilder) AddLimit(count int) *PipelineBuilder {
	if count <= 0 {
		return b
	}
	b.pipeline.AddStage(NewLimitStage(count))
	return b
}

// Build returns the constructed pipeline
func (b *PipelineBuilder) Build() *QueryPipeline {
	return b.pipeline
}
