package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Geocode.APIKey)
	assert.InDelta(t, 30.0, cfg.Geocode.RequestsPerSecond, 0.001)
	assert.Equal(t, 10, cfg.Geocode.TimeoutSecs)
	assert.Equal(t, 8, cfg.Fetch.Workers)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "geomatch-cache.db", cfg.Cache.Path)
	assert.Equal(t, "|", cfg.Output.Delimiter)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chdirTemp(t)

	yaml := `
geocode:
  api_key: test-key
  requests_per_second: 5
fetch:
  workers: 2
cache:
  enabled: true
  path: /tmp/geo.db
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Geocode.APIKey)
	assert.InDelta(t, 5.0, cfg.Geocode.RequestsPerSecond, 0.001)
	assert.Equal(t, 2, cfg.Fetch.Workers)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "/tmp/geo.db", cfg.Cache.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, "|", cfg.Output.Delimiter)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chdirTemp(t)

	yaml := `
geocode:
  api_key: file-key
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GEOMATCH_GEOCODE_API_KEY", "env-key")
	t.Setenv("GEOMATCH_LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "env-key", cfg.Geocode.APIKey)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadAPIKeyFromEnvOnly(t *testing.T) {
	// No config file at all: the env var alone must carry the credential.
	chdirTemp(t)

	t.Setenv("GEOMATCH_GEOCODE_API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Geocode.APIKey)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GEOMATCH_FETCH_WORKERS", "16")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Fetch.Workers)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
