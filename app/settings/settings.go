package settings

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up next to the executable.
const FileName = "brokereye.yml"

// GetEffectiveSettings returns the effective settings (defaults overlaid with file overrides if any).
// If anything goes wrong, it returns defaults.
func GetEffectiveSettings(path string) Settings {
	settings := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return settings
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return settings
	}
	overlay(&settings, m)
	return settings
}

// overlay copies every recognised key present in m onto s. Values of the wrong
// type or outside sane bounds are ignored so a typo never breaks startup.
func overlay(s *Settings, m map[string]any) {
	if v, ok := m["enable_query_cache"]; ok {
		if vb, okb := v.(bool); okb {
			s.EnableQueryCache = vb
		}
	}
	if v, ok := m["cache_size_limit_mb"]; ok {
		if vi, oki := v.(int); oki && vi > 0 {
			s.CacheSizeLimitMB = vi
		}
	}
	if v, ok := m["default_ingest_timezone"]; ok {
		if vs, oks := v.(string); oks {
			s.DefaultIngestTimezone = strings.TrimSpace(vs)
		}
	}
	if v, ok := m["key_field"]; ok {
		if vs, oks := v.(string); oks && strings.TrimSpace(vs) != "" {
			s.KeyField = strings.TrimSpace(vs)
		}
	}
	if v, ok := m["dedup_ratio_threshold"]; ok {
		switch vv := v.(type) {
		case float64:
			s.DedupRatioThreshold = vv
		case int:
			s.DedupRatioThreshold = float64(vv)
		}
	}
	if v, ok := m["dedup_absolute_threshold"]; ok {
		if vi, oki := v.(int); oki && vi >= 0 {
			s.DedupAbsoluteThreshold = vi
		}
	}
	if v, ok := m["offload_threshold"]; ok {
		if vi, oki := v.(int); oki && vi >= 0 {
			s.OffloadThreshold = vi
		}
	}
	if v, ok := m["worker_count"]; ok {
		if vi, oki := v.(int); oki && vi >= 1 {
			s.WorkerCount = vi
		}
	}
	if v, ok := m["worker_queue_size"]; ok {
		if vi, oki := v.(int); oki && vi >= 1 {
			s.WorkerQueueSize = vi
		}
	}
	if v, ok := m["pnl_sign"]; ok {
		if vs, oks := v.(string); oks {
			switch strings.ToLower(strings.TrimSpace(vs)) {
			case PnLSignAsReported:
				s.PnLSign = PnLSignAsReported
			case PnLSignNegated:
				s.PnLSign = PnLSignNegated
			}
		}
	}
	if v, ok := m["group_store_backend"]; ok {
		if vs, oks := v.(string); oks {
			switch strings.ToLower(strings.TrimSpace(vs)) {
			case BackendFile:
				s.GroupStoreBackend = BackendFile
			case BackendDynamoDB:
				s.GroupStoreBackend = BackendDynamoDB
			}
		}
	}
	if v, ok := m["group_store_path"]; ok {
		if vs, oks := v.(string); oks && strings.TrimSpace(vs) != "" {
			s.GroupStorePath = strings.TrimSpace(vs)
		}
	}
	if v, ok := m["dynamodb_table"]; ok {
		if vs, oks := v.(string); oks {
			s.DynamoDBTable = strings.TrimSpace(vs)
		}
	}
	if v, ok := m["max_directory_files"]; ok {
		if vi, oki := v.(int); oki && vi >= 1 {
			s.MaxDirectoryFiles = vi
		}
	}
	if v, ok := m["active_filters"]; ok {
		if vm, okm := v.(map[string]any); okm {
			filters := make(map[string]string, len(vm))
			for consumer, name := range vm {
				if ns, oks := name.(string); oks && ns != "" {
					filters[consumer] = ns
				}
			}
			s.ActiveFilters = filters
		}
	}
	if v, ok := m["instance_id"]; ok {
		if vs, oks := v.(string); oks {
			s.InstanceID = vs
		}
	}
}

// DefaultPath returns the settings file path next to the running executable.
func DefaultPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exe), FileName), nil
}
