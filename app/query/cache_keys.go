package query

import (
	"fmt"
	"strings"

	"brokereye/app/cache"
	"brokereye/app/timestamps"
)

var keyEscaper = strings.NewReplacer("%", "%25", "|", "%7C")

// BuildCacheKey creates a cache key from the dataset id and pipeline stages.
// Format: "dataset:ID:tz:Z|stage1:key1|stage2:key2". The ingest timezone is
// part of the root because timestamp sorting depends on it.
func BuildCacheKey(datasetID string, stages []PipelineStage) string {
	var b strings.Builder
	b.WriteString(cache.DatasetKey(datasetID))
	fmt.Fprintf(&b, ":tz:%s", timestamps.GetDefaultIngestTimezone().String())
	for _, stage := range stages {
		if stage.CanCache() {
			fmt.Fprintf(&b, "|%s:%s", stage.Name(), keyEscaper.Replace(stage.CacheKey()))
		}
	}
	return b.String()
}

// isGroupDependent reports whether any stage's output depends on group state.
func isGroupDependent(stages []PipelineStage) bool {
	for _, s := range stages {
		if gd, ok := s.(groupDependent); ok && gd.GroupDependent() {
			return true
		}
	}
	return false
}
