package interfaces

// DefaultKeyField is the join key used by the broker feeds ("login").
const DefaultKeyField = "login"

// ProgressUpdateInterval defines how often to report progress
const ProgressUpdateInterval = 10000

// ProgressCallback receives per-stage progress updates.
type ProgressCallback func(stage string, current, total int64, message string)

// Record is a single row of a record set.
// Key is the canonical join key, computed once when the record is ingested so
// membership and dedup code never has to compare string and numeric forms.
type Record struct {
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
	Index  int            `json:"index"` // position at ingestion
}

// NewRecord builds a record and canonicalizes its key from keyField.
func NewRecord(fields map[string]any, keyField string, index int) *Record {
	if fields == nil {
		fields = map[string]any{}
	}
	if keyField == "" {
		keyField = DefaultKeyField
	}
	return &Record{
		Key:    NormalizeKey(fields[keyField]),
		Fields: fields,
		Index:  index,
	}
}

// Get returns the raw field value and whether the field exists.
func (r *Record) Get(field string) (any, bool) {
	if r == nil || r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[field]
	return v, ok
}

// NewRecords wraps raw rows as records keyed on keyField.
func NewRecords(rows []map[string]any, keyField string) []*Record {
	out := make([]*Record, len(rows))
	for i, row := range rows {
		out[i] = NewRecord(row, keyField, i)
	}
	return out
}

// Dataset is a loaded record set.
type Dataset struct {
	// ID is a content fingerprint. Empty means the dataset is not cacheable.
	ID      string
	Source  string
	Fields  []string
	Records []*Record
	// Warnings collects non-fatal ingestion problems (partial decompression etc).
	Warnings []string
}

// StageResult is what every pipeline stage consumes and produces.
type StageResult struct {
	Fields  []string
	Records []*Record
}
