package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *SettingsService {
	t.Helper()
	svc, err := NewSettingsService(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	return svc
}

func TestGetSettingsMissingFileReturnsDefaults(t *testing.T) {
	svc := newService(t)

	got, err := svc.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}

func TestGetSettingsOverlaysPresentKeys(t *testing.T) {
	svc := newService(t)
	content := `
worker_count: 4
offload_threshold: 100
dedup_ratio_threshold: 1
pnl_sign: NEGATED
group_store_backend: dynamodb
dynamodb_table: groups
active_filters:
  accounts: VIP
  orders: ""
cache_size_limit_mb: -5
`
	require.NoError(t, os.WriteFile(svc.Path(), []byte(content), 0o644))

	got, err := svc.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, 4, got.WorkerCount)
	assert.Equal(t, 100, got.OffloadThreshold)
	assert.InDelta(t, 1.0, got.DedupRatioThreshold, 1e-9)
	assert.Equal(t, PnLSignNegated, got.PnLSign)
	assert.Equal(t, BackendDynamoDB, got.GroupStoreBackend)
	assert.Equal(t, "groups", got.DynamoDBTable)
	assert.Equal(t, map[string]string{"accounts": "VIP"}, got.ActiveFilters)
	// out of range values keep the default
	assert.Equal(t, 100, got.CacheSizeLimitMB)
	// untouched keys keep the default
	assert.Equal(t, "login", got.KeyField)
}

func TestGetSettingsMalformedFile(t *testing.T) {
	svc := newService(t)
	require.NoError(t, os.WriteFile(svc.Path(), []byte("worker_count: [\n"), 0o644))

	_, err := svc.GetSettings()
	assert.Error(t, err)
	assert.Equal(t, Defaults(), GetEffectiveSettings(svc.Path()))
}

func TestSaveSettingsWritesOnlyOverrides(t *testing.T) {
	svc := newService(t)
	in := Defaults()
	in.WorkerCount = 8
	in.ActiveFilters = map[string]string{"accounts": "VIP"}

	require.NoError(t, svc.SaveSettings(in))

	b, err := os.ReadFile(svc.Path())
	require.NoError(t, err)
	assert.Contains(t, string(b), "worker_count: 8")
	assert.Contains(t, string(b), "accounts: VIP")
	assert.NotContains(t, string(b), "offload_threshold")

	got, err := svc.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, 8, got.WorkerCount)
	assert.Equal(t, "VIP", got.ActiveFilters["accounts"])
}

func TestSaveDefaultsRemovesFile(t *testing.T) {
	svc := newService(t)
	in := Defaults()
	in.WorkerCount = 3
	require.NoError(t, svc.SaveSettings(in))
	require.FileExists(t, svc.Path())

	require.NoError(t, svc.SaveSettings(Defaults()))
	assert.NoFileExists(t, svc.Path())
}

func TestEnsureInstanceIDIsStable(t *testing.T) {
	svc := newService(t)

	first, err := svc.EnsureInstanceID()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := svc.EnsureInstanceID()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
