package settings

// Group store backends
const (
	BackendFile     = "file"
	BackendDynamoDB = "dynamodb"
)

// PnL sign conventions (see aggregate.SignConvention)
const (
	PnLSignAsReported = "as_reported"
	PnLSignNegated    = "negated"
)

// Settings holds engine settings that can be overridden by the operator.
type Settings struct {
	EnableQueryCache bool `yaml:"enable_query_cache" json:"enable_query_cache"`
	// Cache size limit in MB for the pipeline cache
	CacheSizeLimitMB int `yaml:"cache_size_limit_mb" json:"cache_size_limit_mb"`
	// Timezone assumed for timestamps that do not carry one ("Local", "UTC" or IANA name)
	DefaultIngestTimezone string `yaml:"default_ingest_timezone" json:"default_ingest_timezone"`
	// Field used as the join key when records are ingested
	KeyField string `yaml:"key_field" json:"key_field"`
	// Dedup drops are logged only above either threshold
	DedupRatioThreshold    float64 `yaml:"dedup_ratio_threshold" json:"dedup_ratio_threshold"`
	DedupAbsoluteThreshold int     `yaml:"dedup_absolute_threshold" json:"dedup_absolute_threshold"`
	// Collections at or above this size are aggregated on the worker pool
	OffloadThreshold int    `yaml:"offload_threshold" json:"offload_threshold"`
	WorkerCount      int    `yaml:"worker_count" json:"worker_count"`
	WorkerQueueSize  int    `yaml:"worker_queue_size" json:"worker_queue_size"`
	PnLSign          string `yaml:"pnl_sign" json:"pnl_sign"`
	// Group persistence
	GroupStoreBackend string `yaml:"group_store_backend" json:"group_store_backend"`
	GroupStorePath    string `yaml:"group_store_path" json:"group_store_path"`
	DynamoDBTable     string `yaml:"dynamodb_table,omitempty" json:"dynamodb_table,omitempty"`
	// Maximum number of files when loading a directory as one record set
	MaxDirectoryFiles int `yaml:"max_directory_files" json:"max_directory_files"`
	// ActiveFilters restores consumer -> group selections across CLI runs
	ActiveFilters map[string]string `yaml:"active_filters,omitempty" json:"active_filters,omitempty"`
	// InstanceID is a unique identifier for this installation
	InstanceID string `yaml:"instance_id,omitempty" json:"instance_id,omitempty"`
}

// defaultSettings defines the built-in defaults.
var defaultSettings = Settings{
	EnableQueryCache:       true,
	CacheSizeLimitMB:       100,
	DefaultIngestTimezone:  "UTC",
	KeyField:               "login",
	DedupRatioThreshold:    0.05,
	DedupAbsoluteThreshold: 20,
	OffloadThreshold:       5000,
	WorkerCount:            2,
	WorkerQueueSize:        64,
	PnLSign:                PnLSignAsReported,
	GroupStoreBackend:      BackendFile,
	GroupStorePath:         "groups.json",
	MaxDirectoryFiles:      500,
}

// Defaults returns a copy of the built-in defaults.
func Defaults() Settings {
	s := defaultSettings
	s.ActiveFilters = map[string]string{}
	return s
}
