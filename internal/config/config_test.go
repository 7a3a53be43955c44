package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lanchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 9999, cfg.Network.DiscoveryPort)
	assert.Equal(t, 3333, cfg.Network.SessionPort)
	assert.Equal(t, "1s", cfg.Server.PollInterval)
	assert.Equal(t, "2s", cfg.Server.GracePeriod)
	assert.Equal(t, "255.255.255.255", cfg.Client.BroadcastAddr)
	assert.Equal(t, "1.5s", cfg.Client.DiscoveryTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
network:
  sessionPort: 4444
server:
  name: ServerA
  gateway: ":8080"
  advertise: true
  gracePeriod: 500ms
client:
  name: alice
  server: ServerA
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9999, cfg.Network.DiscoveryPort)
	assert.Equal(t, 4444, cfg.Network.SessionPort)
	assert.Equal(t, "ServerA", cfg.Server.Name)
	assert.Equal(t, ":8080", cfg.Server.Gateway)
	assert.True(t, cfg.Server.Advertise)
	assert.Equal(t, "500ms", cfg.Server.GracePeriod)
	assert.Equal(t, "1s", cfg.Server.PollInterval)
	assert.Equal(t, "alice", cfg.Client.Name)

	serverOpts, err := cfg.ServerOptions()
	require.NoError(t, err)
	assert.Len(t, serverOpts, 7)
	clientOpts, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.Len(t, clientOpts, 4)

	d, err := cfg.Discoverer()
	require.NoError(t, err)
	assert.Equal(t, 9999, d.Port)
	assert.Equal(t, "255.255.255.255", d.BroadcastAddr)
	assert.Equal(t, 1500*time.Millisecond, d.Timeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"port":     "network:\n  discoveryPort: 70000\n",
		"duration": "server:\n  pollInterval: soon\n",
		"negative": "client:\n  discoveryTimeout: -1s\n",
		"yaml":     "server: [unterminated\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := writeConfig(t, "server:\n  name: fromenv\n")
	t.Setenv(EnvConfigFile, path)
	cfg, err = LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Server.Name)
}
