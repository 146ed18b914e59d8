// ABOUTME: Tests for config loading: defaults, YAML parsing, env expansion,
// ABOUTME: duration strings, and validation failures.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, StudioPluginPort, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:44755", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Poll.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Poll.StaleGap)
	assert.Equal(t, 120*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.Logging.File)
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "0.0.0.0"
  port: 8080
poll:
  timeout: "30s"
  stale_gap: "10s"
proxy:
  timeout: "2m"
logging:
  level: "debug"
  format: "json"
  file: "/tmp/bridge.log"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Poll.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Poll.StaleGap)
	assert.Equal(t, 2*time.Minute, cfg.Proxy.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/tmp/bridge.log", cfg.Logging.File)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, StudioPluginPort, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Poll.Timeout)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("BRIDGE_TEST_HOST", "10.0.0.5")
	t.Setenv("BRIDGE_TEST_LEVEL", "error")

	path := writeConfig(t, `
server:
  host: "${BRIDGE_TEST_HOST}"
logging:
  level: "${BRIDGE_TEST_LEVEL}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadUnsetEnvVarExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "${BRIDGE_TEST_DOES_NOT_EXIST}"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.host is required")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
poll:
  timeout: "fifteen seconds"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll.timeout")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: a: mapping")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "non-positive poll timeout",
			mutate:  func(c *Config) { c.Poll.Timeout = 0 },
			wantErr: "poll.timeout",
		},
		{
			name:    "non-positive stale gap",
			mutate:  func(c *Config) { c.Poll.StaleGap = -time.Second },
			wantErr: "poll.stale_gap",
		},
		{
			name:    "non-positive proxy timeout",
			mutate:  func(c *Config) { c.Proxy.Timeout = 0 },
			wantErr: "proxy.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
