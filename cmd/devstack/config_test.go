package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "stack.yml", cfg.Stack.File)
	assert.Equal(t, 10*time.Second, cfg.Stack.StopGrace)
	assert.True(t, cfg.Stack.Pull)
	assert.Equal(t, "", cfg.Docker.Host)
	assert.Equal(t, 1*time.Second, cfg.Probe.Interval)
	assert.Equal(t, 30*time.Second, cfg.Probe.Timeout)
	assert.True(t, cfg.State.Enabled)
	assert.Equal(t, 50, cfg.State.Keep)
	assert.Equal(t, "127.0.0.1:7466", cfg.Serve.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	configContent := `
stack:
  file: "dev/stack.yml"
  stop_grace: 5s
  pull: false

probe:
  interval: 250ms
  timeout: 10s

log:
  level: "debug"
  format: "json"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "dev/stack.yml", cfg.Stack.File)
	assert.Equal(t, 5*time.Second, cfg.Stack.StopGrace)
	assert.False(t, cfg.Stack.Pull)
	assert.Equal(t, 250*time.Millisecond, cfg.Probe.Interval)
	assert.Equal(t, 10*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("DEVSTACK_LOG_LEVEL", "warn")
	t.Setenv("DEVSTACK_DOCKER_HOST", "tcp://127.0.0.1:2375")
	t.Setenv("DEVSTACK_PROBE_TIMEOUT", "45s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "tcp://127.0.0.1:2375", cfg.Docker.Host)
	assert.Equal(t, 45*time.Second, cfg.Probe.Timeout)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("{{not yaml"), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "stack.yml", cfg.Stack.File)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		cfg := &Config{Log: LogConfig{Level: level, Format: "text"}}
		assert.NotNil(t, SetupLogger(cfg), level)
	}
}
