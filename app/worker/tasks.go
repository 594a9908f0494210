package worker

import (
	"context"
	"fmt"

	"brokereye/app/aggregate"
	"brokereye/app/query"
)

// Handler executes one task type. The payload is the Request payload as sent.
type Handler func(ctx context.Context, payload any) (any, error)

// DefaultHandlers maps every task type to the same functions the inline path
// uses, so offloaded results cannot diverge from inline ones.
func DefaultHandlers() map[TaskType]Handler {
	return map[TaskType]Handler{
		TaskCalculateStats:     handleStats,
		TaskFilterRecords:      handleFilter,
		TaskSortRecords:        handleSort,
		TaskDeduplicateRecords: handleDedup,
		TaskFullPipeline:       handlePipeline,
	}
}

func payloadError(t TaskType, payload any) error {
	return fmt.Errorf("%s: unexpected payload %T", t, payload)
}

func handleStats(ctx context.Context, payload any) (any, error) {
	p, ok := payload.(StatsPayload)
	if !ok {
		return nil, payloadError(TaskCalculateStats, payload)
	}
	return aggregate.ComputeContext(ctx, p.Records, p.Options)
}

func handleFilter(ctx context.Context, payload any) (any, error) {
	p, ok := payload.(FilterPayload)
	if !ok {
		return nil, payloadError(TaskFilterRecords, payload)
	}
	res, err := query.NewPipelineBuilder(ctx, "", nil, nil, query.CacheConfig{}).
		AddColumnFilters(p.Filters...).
		AddSearch(p.Search, p.SearchFields, p.Synonyms...).
		Build().
		Execute(&query.StageResult{Records: p.Records})
	if err != nil {
		return nil, err
	}
	return RecordsResult{Fields: res.Fields, Records: res.Records}, nil
}

func handleSort(ctx context.Context, payload any) (any, error) {
	p, ok := payload.(SortPayload)
	if !ok {
		return nil, payloadError(TaskSortRecords, payload)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := query.NewSortStage(p.Sort, p.TimeFields...).Execute(&query.StageResult{Fields: p.Fields, Records: p.Records})
	if err != nil {
		return nil, err
	}
	return RecordsResult{Fields: res.Fields, Records: res.Records}, nil
}

func handleDedup(ctx context.Context, payload any) (any, error) {
	p, ok := payload.(DedupPayload)
	if !ok {
		return nil, payloadError(TaskDeduplicateRecords, payload)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stage := query.NewDedupStage(p.Options)
	res, err := stage.Execute(&query.StageResult{Records: p.Records})
	if err != nil {
		return nil, err
	}
	rep, _ := stage.Report()
	return RecordsResult{Fields: res.Fields, Records: res.Records, Dedup: &rep}, nil
}

func handlePipeline(ctx context.Context, payload any) (any, error) {
	p, ok := payload.(PipelinePayload)
	if !ok {
		return nil, payloadError(TaskFullPipeline, payload)
	}

	var dedup *query.DedupStage
	if p.Dedup != nil {
		dedup = query.NewDedupStage(*p.Dedup)
	}
	res, err := query.NewPipelineBuilder(ctx, "", nil, nil, query.CacheConfig{}).
		AddScope(p.ScopeField, p.ScopeValues).
		AddGroup(p.Group, p.KeyField).
		AddColumnFilters(p.Filters...).
		AddSearch(p.Search, p.SearchFields, p.Synonyms...).
		AddDedupStage(dedup).
		AddSort(p.Sort, p.TimeFields...).
		AddLimit(p.Limit).
		Build().
		Execute(&query.StageResult{Fields: p.Fields, Records: p.Records})
	if err != nil {
		return nil, err
	}

	out := PipelineResult{RecordsResult: RecordsResult{Fields: res.Fields, Records: res.Records}}
	if dedup != nil {
		if rep, ok := dedup.Report(); ok {
			out.Dedup = &rep
		}
	}
	if p.WithTotals {
		t, err := aggregate.ComputeContext(ctx, res.Records, p.StatsOptions)
		if err != nil {
			return nil, err
		}
		out.Totals = &t
	}
	return out, nil
}
