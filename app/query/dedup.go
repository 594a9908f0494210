package query

import (
	"fmt"
	"log/slog"
	"sync"

	"brokereye/app/interfaces"
)

// Default thresholds above which dropped duplicates are logged
const (
	DefaultDedupRatioThreshold    = 0.05
	DefaultDedupAbsoluteThreshold = 20
)

// DedupReport summarizes one dedup pass
type DedupReport struct {
	Input     int  `json:"input"`
	Kept      int  `json:"kept"`
	Dropped   int  `json:"dropped"`
	Excessive bool `json:"excessive"`
}

// DedupOptions configures the dedup guard. Zero thresholds use the defaults.
type DedupOptions struct {
	// KeyField dedups on the normalized value of this field instead of Record.Key
	KeyField          string
	RatioThreshold    float64
	AbsoluteThreshold int
	// Source names the record set in the warning log
	Source string
	Logger *slog.Logger
}

func (o DedupOptions) withDefaults() DedupOptions {
	if o.RatioThreshold <= 0 {
		o.RatioThreshold = DefaultDedupRatioThreshold
	}
	if o.AbsoluteThreshold <= 0 {
		o.AbsoluteThreshold = DefaultDedupAbsoluteThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Dedupe keeps the first record seen for each key, preserving order. Records
// with an empty key all share the "" key, so only the first of them survives.
func Dedupe(records []*Record, keyField string) ([]*Record, DedupReport) {
	seen := make(map[string]struct{}, len(records))
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		key := r.Key
		if keyField != "" {
			v, _ := r.Get(keyField)
			key = interfaces.NormalizeKey(v)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out, DedupReport{
		Input:   len(records),
		Kept:    len(out),
		Dropped: len(records) - len(out),
	}
}

// Excessive applies the thresholds to a report
func (o DedupOptions) Excessive(rep DedupReport) bool {
	o = o.withDefaults()
	return float64(rep.Dropped) > o.RatioThreshold*float64(rep.Input) || rep.Dropped > o.AbsoluteThreshold
}

// DedupStage guarantees key uniqueness before display
type DedupStage struct {
	opts DedupOptions
	name string

	mu     sync.Mutex
	report *DedupReport
}

// NewDedupStage creates a dedup stage
func NewDedupStage(opts DedupOptions) *DedupStage {
	return &DedupStage{opts: opts.withDefaults(), name: "dedup"}
}

// Execute drops later duplicates and warns when too many were dropped
func (d *DedupStage) Execute(input *StageResult) (*StageResult, error) {
	out, rep := Dedupe(input.Records, d.opts.KeyField)
	rep.Excessive = d.opts.Excessive(rep)
	if rep.Excessive {
		d.opts.Logger.Warn("excessive duplicate records dropped",
			"source", d.opts.Source,
			"input", rep.Input,
			"kept", rep.Kept,
			"dropped", rep.Dropped,
			"key_field", d.opts.KeyField,
		)
	}

	d.mu.Lock()
	d.report = &rep
	d.mu.Unlock()

	return &StageResult{Fields: input.Fields, Records: out}, nil
}

// Report returns the last report, or false if the stage was served from cache
func (d *DedupStage) Report() (DedupReport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.report == nil {
		return DedupReport{}, false
	}
	return *d.report, true
}

// CanCache returns true if this stage can be cached
func (d *DedupStage) CanCache() bool { return true }

// CacheKey returns a unique key for caching
func (d *DedupStage) CacheKey() string {
	return fmt.Sprintf("key=%s", d.opts.KeyField)
}

// Name returns the stage name
func (d *DedupStage) Name() string { return d.name }

// EstimateOutputSize estimates output size
func (d *DedupStage) EstimateOutputSize() float64 { return 0.9 }
