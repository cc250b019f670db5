package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "TABSYNC_BEARER_TOKEN", cfg.Server.CredentialEnvVar)
	assert.Equal(t, int64(1000), cfg.Scheduler.ActiveIntervalMS)
	assert.Equal(t, 1000, cfg.Scheduler.MaxQueueSize)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabsync-agent.toml")
	contents := `
[server]
url = "https://sync.example.com"
timeout_seconds = 5

[scheduler]
idle_interval_ms = 20000
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://sync.example.com", cfg.Server.URL)
	assert.Equal(t, 5, cfg.Server.TimeoutSeconds)
	assert.Equal(t, int64(20000), cfg.Scheduler.IdleIntervalMS)
	// untouched scheduler fields still carry their defaults
	assert.Equal(t, int64(1000), cfg.Scheduler.ActiveIntervalMS)
}

func TestValidateRejectsSyncSuffix(t *testing.T) {
	cfg := &Config{Server: ServerConfig{URL: "https://sync.example.com/sync"}}
	err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateAcceptsBareURL(t *testing.T) {
	cfg := &Config{Server: ServerConfig{URL: "https://sync.example.com"}}
	require.NoError(t, Validate(cfg))
}
