package cache

import (
	"fmt"
	"strings"
)

// DatasetKey is the root of every key computed for a dataset.
func DatasetKey(datasetID string) string {
	return fmt.Sprintf("dataset:%s", datasetID)
}

// ExtractStageCount returns how many stage segments follow the dataset root.
func ExtractStageCount(key string) int {
	return strings.Count(key, "|")
}

// ExtractStageNameFromKey returns the name of the last stage in key.
func ExtractStageNameFromKey(key string) string {
	idx := strings.LastIndex(key, "|")
	if idx < 0 {
		return ""
	}
	name, _, ok := strings.Cut(key[idx+1:], ":")
	if !ok {
		return ""
	}
	return name
}
