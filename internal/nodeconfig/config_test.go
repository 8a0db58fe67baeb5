package nodeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsEnumerated(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 100, cfg.MaxPeers)
	require.Equal(t, 50, cfg.MinPeersOrDefault())
	require.Equal(t, DefaultTimeouts, cfg.Timeouts)
	require.Equal(t, DefaultRebroadcast, cfg.Rebroadcast)
}

func TestMinPeersOrDefaultDerivesFromMaxPeers(t *testing.T) {
	cfg := Defaults()
	cfg.MaxPeers = 20
	cfg.MinPeers = 0
	require.Equal(t, 10, cfg.MinPeersOrDefault())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	contents := "Port = 9000\nMaxPeers = 50\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg := Defaults()
	require.NoError(t, Load(path, &cfg))
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 50, cfg.MaxPeers)
	require.Equal(t, DefaultTimeouts, cfg.Timeouts, "unspecified fields keep their defaults")
}
