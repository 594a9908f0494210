package query

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ProgressTracker numbers pipeline stages and forwards their start and
// completion to a callback.
type ProgressTracker struct {
	mu       sync.Mutex
	callback ProgressCallback
	total    int
	seen     int
	started  map[string]time.Time
}

// NewProgressTracker creates a tracker for a pipeline of totalStages stages
func NewProgressTracker(callback ProgressCallback, totalStages int) *ProgressTracker {
	return &ProgressTracker{
		callback: callback,
		total:    totalStages,
		started:  make(map[string]time.Time, totalStages),
	}
}

// StartStage reports a stage about to run over roughly estimatedRows rows
// (-1 when unknown).
func (p *ProgressTracker) StartStage(name string, estimatedRows int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen++
	p.started[name] = time.Now()
	if p.callback != nil {
		p.callback(name, 0, estimatedRows, fmt.Sprintf("Stage %d/%d: %s", p.seen, p.total, name))
	}
}

// CompleteStage reports a finished stage. Stages served from the cache
// complete without having started.
func (p *ProgressTracker) CompleteStage(name string, finalCount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	began, ok := p.started[name]
	if !ok {
		p.seen++
		began = time.Now()
	}
	if p.callback != nil {
		p.callback(name, finalCount, finalCount, fmt.Sprintf("Stage %d/%d: %s completed (%d rows, %v)",
			p.seen, p.total, name, finalCount, time.Since(began).Truncate(time.Millisecond)))
	}
}

// NoOpProgressCallback is a progress callback that does nothing
func NoOpProgressCallback(stage string, current, total int64, message string) {}

// LogProgressCallback creates a progress callback that logs at debug level
func LogProgressCallback(logger *slog.Logger) ProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return func(stage string, current, total int64, message string) {
		logger.Debug("query progress", "stage", stage, "current", current, "total", total, "message", message)
	}
}

// ProgressEstimator helps estimate row counts for different pipeline stages
type ProgressEstimator struct {
	inputRows int64
}

// NewProgressEstimator creates a new progress estimator
func NewProgressEstimator(inputRows int64) *ProgressEstimator {
	return &ProgressEstimator{inputRows: inputRows}
}

// EstimateStageOutput estimates the output size for a pipeline stage, or -1
// when unknown.
func (e *ProgressEstimator) EstimateStageOutput(stage PipelineStage) int64 {
	if e.inputRows <= 0 {
		return -1
	}
	ratio := stage.EstimateOutputSize()
	if ratio < 0 {
		return -1
	}
	return int64(float64(e.inputRows) * ratio)
}
