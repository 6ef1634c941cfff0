package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60, cfg.Replication.UpdateRate)
	assert.Equal(t, int64(120), cfg.Replication.HistorySize)
	assert.Equal(t, 0.1, cfg.Replication.InterpolationDelay)
	assert.Equal(t, 0.5, cfg.Replication.SoftOwnerDelay)
	assert.Equal(t, 60, cfg.Replication.MaxCatchUpTicks)
	assert.Equal(t, "0.0.0.0:7350", cfg.Server.Addr())
	assert.Empty(t, cfg.NATS.URL, "websocket transport by default")
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "physd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
replication:
  update_rate: 30
  soft_owner_delay: 1.0
server:
  port: 9000
nats:
  url: nats://localhost:4222
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30, cfg.Replication.UpdateRate)
	assert.Equal(t, 1.0, cfg.Replication.SoftOwnerDelay)
	assert.Equal(t, int64(120), cfg.Replication.HistorySize, "unset keys keep their defaults")
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replication: ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
