package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lanchat/internal/client"
	"lanchat/internal/server"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestServerCommand(t *testing.T) {
	srv, err := server.New("Office")
	require.NoError(t, err)
	var out bytes.Buffer
	con := newConsole(&out)

	assert.False(t, serverCommand(srv, con, "/info"))
	assert.Contains(t, out.String(), "Servername: office")

	out.Reset()
	assert.False(t, serverCommand(srv, con, "@bob hello"))
	assert.Contains(t, out.String(), `no client named "bob"`)

	out.Reset()
	assert.False(t, serverCommand(srv, con, "hello everyone"))
	assert.Contains(t, out.String(), "no clients received the message")

	out.Reset()
	assert.False(t, serverCommand(srv, con, "   "))
	assert.Empty(t, out.String())

	assert.True(t, serverCommand(srv, con, "/quit"))
}

func TestClientCommand(t *testing.T) {
	c, err := client.New("alice", "office")
	require.NoError(t, err)
	var out bytes.Buffer
	con := newConsole(&out)

	assert.False(t, clientCommand(c, con, "/info"))
	assert.Contains(t, out.String(), "Client: alice connected to office")

	out.Reset()
	assert.False(t, clientCommand(c, con, "hello"))
	assert.Contains(t, out.String(), "message not sent")

	assert.True(t, clientCommand(c, con, " /quit "))
}

func TestResolveAppliesFlagsOverConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\nnetwork:\n  sessionPort: 4000\n"), 0o644))

	g := &globals{}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&g.configPath, "config", "", "")
	cmd.Flags().StringVar(&g.logLevel, "log-level", "", "")
	cmd.Flags().IntVar(&g.discoveryPort, "discovery-port", 0, "")
	cmd.Flags().IntVar(&g.sessionPort, "session-port", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--config", path, "--discovery-port", "5000"}))

	require.NoError(t, g.resolve(cmd))
	assert.Equal(t, "warn", g.cfg.LogLevel)
	assert.Equal(t, 5000, g.cfg.Network.DiscoveryPort)
	assert.Equal(t, 4000, g.cfg.Network.SessionPort)
}

func TestResolveRejectsInvalidPort(t *testing.T) {
	t.Setenv("LANCHAT_CONFIG", "")
	g := &globals{}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&g.sessionPort, "session-port", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--session-port=-1"}))

	assert.Error(t, g.resolve(cmd))
}

func TestReadLines(t *testing.T) {
	var got []string
	for line := range readLines(strings.NewReader("one\ntwo\nthree")) {
		got = append(got, line)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}
