package settings

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SettingsService manages reading/writing settings from disk.
type SettingsService struct {
	path string
}

// NewSettingsService returns a service bound to path. An empty path resolves
// to brokereye.yml next to the executable.
func NewSettingsService(path string) (*SettingsService, error) {
	if strings.TrimSpace(path) == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve settings path: %w", err)
		}
		path = p
	}
	return &SettingsService{path: path}, nil
}

// Path returns the settings file location.
func (s *SettingsService) Path() string {
	return s.path
}

// GetSettings returns the effective settings (defaults overlaid with file overrides if any).
// Unlike GetEffectiveSettings it reports read and parse errors.
func (s *SettingsService) GetSettings() (Settings, error) {
	settings := Defaults()
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings: %w", err)
	}
	// Unmarshal into a generic map to detect key presence
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return settings, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	overlay(&settings, m)
	return settings, nil
}

// SaveSettings writes only the values that differ from the defaults.
func (s *SettingsService) SaveSettings(in Settings) error {
	old := GetEffectiveSettings(s.path)

	data := make(map[string]any)
	if in.EnableQueryCache != defaultSettings.EnableQueryCache {
		data["enable_query_cache"] = in.EnableQueryCache
	}
	if in.CacheSizeLimitMB != defaultSettings.CacheSizeLimitMB && in.CacheSizeLimitMB > 0 {
		data["cache_size_limit_mb"] = in.CacheSizeLimitMB
	}
	if tz := strings.TrimSpace(in.DefaultIngestTimezone); tz != "" && tz != defaultSettings.DefaultIngestTimezone {
		data["default_ingest_timezone"] = tz
	}
	if kf := strings.TrimSpace(in.KeyField); kf != "" && kf != defaultSettings.KeyField {
		data["key_field"] = kf
	}
	if in.DedupRatioThreshold != defaultSettings.DedupRatioThreshold {
		data["dedup_ratio_threshold"] = in.DedupRatioThreshold
	}
	if in.DedupAbsoluteThreshold != defaultSettings.DedupAbsoluteThreshold {
		data["dedup_absolute_threshold"] = in.DedupAbsoluteThreshold
	}
	if in.OffloadThreshold != defaultSettings.OffloadThreshold {
		data["offload_threshold"] = in.OffloadThreshold
	}
	if in.WorkerCount != defaultSettings.WorkerCount && in.WorkerCount >= 1 {
		data["worker_count"] = in.WorkerCount
	}
	if in.WorkerQueueSize != defaultSettings.WorkerQueueSize && in.WorkerQueueSize >= 1 {
		data["worker_queue_size"] = in.WorkerQueueSize
	}
	if in.PnLSign != "" && in.PnLSign != defaultSettings.PnLSign {
		data["pnl_sign"] = in.PnLSign
	}
	if in.GroupStoreBackend != "" && in.GroupStoreBackend != defaultSettings.GroupStoreBackend {
		data["group_store_backend"] = in.GroupStoreBackend
	}
	if p := strings.TrimSpace(in.GroupStorePath); p != "" && p != defaultSettings.GroupStorePath {
		data["group_store_path"] = p
	}
	if t := strings.TrimSpace(in.DynamoDBTable); t != "" {
		data["dynamodb_table"] = t
	}
	if in.MaxDirectoryFiles != defaultSettings.MaxDirectoryFiles && in.MaxDirectoryFiles >= 1 {
		data["max_directory_files"] = in.MaxDirectoryFiles
	}
	if len(in.ActiveFilters) > 0 {
		data["active_filters"] = maps.Clone(in.ActiveFilters)
	}

	// Instance ID is never shown to operators but must survive a save
	instanceID := strings.TrimSpace(in.InstanceID)
	if instanceID == "" {
		instanceID = strings.TrimSpace(old.InstanceID)
	}
	if instanceID != "" {
		data["instance_id"] = instanceID
	}

	if len(data) == 0 {
		// Remove an existing file to reflect defaults-only state
		if _, statErr := os.Stat(s.path); statErr == nil {
			_ = os.Remove(s.path)
		}
		return nil
	}
	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// EnsureInstanceID assigns a UUID to this installation if it has none.
func (s *SettingsService) EnsureInstanceID() (string, error) {
	settings, err := s.GetSettings()
	if err != nil {
		return "", err
	}
	if id := strings.TrimSpace(settings.InstanceID); id != "" {
		return id, nil
	}
	settings.InstanceID = uuid.New().String()
	if err := s.SaveSettings(settings); err != nil {
		return "", err
	}
	return settings.InstanceID, nil
}
