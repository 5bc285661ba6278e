package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "auctionnode.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_appliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, "client_id: 2\n"))
	require.NoError(t, err)

	require.Equal(t, 2, cfg.ClientID)
	require.Equal(t, "auction-network", cfg.Topic)
	require.Equal(t, 3000, cfg.ControlBasePort)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, ":3002", cfg.ControlAddr())

	// The default listen address uses port 0 for an ephemeral port;
	// it has to survive validation as-is.
	require.Equal(t, "0.0.0.0:0", cfg.ListenAddr)
}

func TestLoadConfig_fullFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, `
client_id: 7
topic: fine-art
listen_addr: "127.0.0.1:9700"
seeds:
  - "127.0.0.1:9701"
  - "127.0.0.1:9702"
control_base_port: 8000
log_level: debug
`))
	require.NoError(t, err)

	require.Equal(t, "fine-art", cfg.Topic)
	require.Equal(t, []string{"127.0.0.1:9701", "127.0.0.1:9702"}, cfg.Seeds)
	require.Equal(t, ":8007", cfg.ControlAddr())
}

func TestLoadConfig_rejectsBadValues(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"missing client id": "topic: x\n",
		"zero client id":    "client_id: 0\n",
		"bad seed":          "client_id: 1\nseeds: [\"not an address\"]\n",
		"bad listen addr":   "client_id: 1\nlisten_addr: \"no-port-here\"\n",
		"bad log level":     "client_id: 1\nlog_level: loud\n",
		"not yaml":          "{{{\n",
	} {
		_, err := LoadConfig(writeConfig(t, content))
		require.Error(t, err, name)
	}
}

func TestLoadConfig_missingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
