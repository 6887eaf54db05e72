package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.vworld.kr/req/address", cfg.VWorld.BaseURL)
	assert.Equal(t, "", cfg.VWorld.Key)
	assert.Equal(t, "", cfg.VWorld.Referer)
	assert.Equal(t, 10, cfg.VWorld.TimeoutSecs)
	assert.InDelta(t, 20.0, cfg.VWorld.RateLimit, 0.001)
	assert.Equal(t, 4326, cfg.CRS.Source)
	assert.Equal(t, 5186, cfg.CRS.Target)
	assert.Equal(t, 10, cfg.Batch.Concurrency)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
vworld:
  key: test-key
  referer: https://example.com/
crs:
  source: 4019
batch:
  concurrency: 5
log:
  level: debug
  format: console
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.VWorld.Key)
	assert.Equal(t, "https://example.com/", cfg.VWorld.Referer)
	assert.Equal(t, 4019, cfg.CRS.Source)
	assert.Equal(t, 5, cfg.Batch.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 5186, cfg.CRS.Target)
	assert.Equal(t, 10, cfg.VWorld.TimeoutSecs)
}

func TestLoadEnvOverrides(t *testing.T) {
	chTempDir(t)

	t.Setenv("GEOBATCH_VWORLD_KEY", "env-key")
	t.Setenv("GEOBATCH_BATCH_CONCURRENCY", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.VWorld.Key)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
