package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"nanofeed/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 8888, cfg.Port)
	assert.Equal(t, 32, cfg.Concurrency)
	assert.Equal(t, 20, cfg.FetchTimeoutSeconds)
	assert.Equal(t, 10, cfg.ConnectTimeoutSeconds)
	assert.Equal(t, 0, cfg.RefreshIntervalMinutes)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanofeed.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
address = "127.0.0.1"
port = 9000
database = "/var/lib/nanofeed/data.db"
refresh_interval_minutes = 30
`), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Address)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/var/lib/nanofeed/data.db", cfg.Database)
	assert.Equal(t, 30, cfg.RefreshIntervalMinutes)

	// Unset keys keep their defaults
	assert.Equal(t, 32, cfg.Concurrency)
	assert.Equal(t, 20, cfg.FetchTimeoutSeconds)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
