package worker

import (
	"errors"
	"time"

	"brokereye/app/aggregate"
	"brokereye/app/interfaces"
	"brokereye/app/query"
)

// ErrClosed is returned once the pool or client has shut down.
var ErrClosed = errors.New("worker: closed")

// TaskType identifies the work a request asks for
type TaskType string

const (
	TaskCalculateStats     TaskType = "CalculateStats"
	TaskFilterRecords      TaskType = "FilterRecords"
	TaskSortRecords        TaskType = "SortRecords"
	TaskDeduplicateRecords TaskType = "DeduplicateRecords"
	TaskFullPipeline       TaskType = "FullPipeline"
)

// ResponseType is Success or Error
type ResponseType string

const (
	ResponseSuccess ResponseType = "Success"
	ResponseError   ResponseType = "Error"
)

// Request is one unit of background work. RequestID is opaque to the pool and
// echoed back unchanged; the client fills it with a uuid when empty.
type Request struct {
	Type      TaskType `json:"type"`
	Payload   any      `json:"payload"`
	RequestID string   `json:"requestId"`
}

// Response answers exactly one Request
type Response struct {
	Type      ResponseType `json:"type"`
	RequestID string       `json:"requestId"`
	TaskType  TaskType     `json:"taskType"`
	Result    any          `json:"result,omitempty"`
	Error     *TaskError   `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// TaskError carries a failed task's message and, for panics, the stack.
type TaskError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *TaskError) Error() string { return e.Message }

// StatsPayload asks for aggregate totals
type StatsPayload struct {
	Records []*interfaces.Record
	Options aggregate.Options
}

// FilterPayload runs column filters and search
type FilterPayload struct {
	Records      []*interfaces.Record
	Filters      []query.ColumnFilter
	Search       string
	SearchFields []string
	Synonyms     []query.Synonym
}

// SortPayload sorts by a single column
type SortPayload struct {
	Records    []*interfaces.Record
	Fields     []string
	Sort       query.SortSpec
	TimeFields []string
}

// DedupPayload enforces key uniqueness
type DedupPayload struct {
	Records []*interfaces.Record
	Options query.DedupOptions
}

// PipelinePayload runs the whole view chain and optionally totals the result
type PipelinePayload struct {
	Records      []*interfaces.Record
	Fields       []string
	ScopeField   string
	ScopeValues  []any
	Group        query.Membership
	KeyField     string
	Filters      []query.ColumnFilter
	Search       string
	SearchFields []string
	Synonyms     []query.Synonym
	Dedup        *query.DedupOptions
	Sort         query.SortSpec
	TimeFields   []string
	Limit        int
	WithTotals   bool
	StatsOptions aggregate.Options
}

// RecordsResult is returned by the filter, sort and dedup tasks
type RecordsResult struct {
	Fields  []string
	Records []*interfaces.Record
	Dedup   *query.DedupReport
}

// PipelineResult is returned by TaskFullPipeline
type PipelineResult struct {
	RecordsResult
	Totals *aggregate.Totals
}
