package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/gtpstamp/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
gtpstamp:
  node:
    id: 7
  stamp:
    strict_length: false
    timestamp_order: BIG
  queue:
    num: 10
    count: 4
    max_queue_len: 1024
    fail_open: true
  metrics:
    enabled: true
    listen: "127.0.0.1:9300"
  log:
    level: DEBUG
    file:
      enabled: true
      path: /tmp/gtpstamp-test.log
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, uint8(7), cfg.Node.NodeID())
	assert.False(t, cfg.Stamp.StrictLength)
	assert.Equal(t, "big", cfg.Stamp.TimestampOrder)
	assert.Equal(t, 10, cfg.Queue.Num)
	assert.Equal(t, 4, cfg.Queue.Count)
	assert.Equal(t, 1024, cfg.Queue.MaxQueueLen)
	assert.Equal(t, core.IPv4MaxTotalLen, cfg.Queue.MaxPacketLen)
	assert.True(t, cfg.Queue.FailOpen)
	assert.Equal(t, "127.0.0.1:9300", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.File.Enabled)
	assert.Equal(t, 100, cfg.Log.File.MaxSizeMB)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uint8(1), cfg.Node.NodeID())
	assert.True(t, cfg.Stamp.StrictLength)
	assert.Equal(t, "little", cfg.Stamp.TimestampOrder)
	assert.Equal(t, 10, cfg.Stamp.WarnPerSource)
	assert.Equal(t, 10*time.Second, cfg.Stamp.WarnWindow)
	assert.Equal(t, 0, cfg.Queue.Num)
	assert.Equal(t, 1, cfg.Queue.Count)
	assert.Equal(t, 4096, cfg.Queue.MaxQueueLen)
	assert.Equal(t, "/var/run/gtpstamp.pid", cfg.Control.PIDFile)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.File.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GTPSTAMP_NODE_ID", "42")
	t.Setenv("GTPSTAMP_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint8(42), cfg.Node.NodeID())
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"NodeIDTooLarge", "gtpstamp:\n  node:\n    id: 256\n"},
		{"NodeIDNegative", "gtpstamp:\n  node:\n    id: -1\n"},
		{"BadByteOrder", "gtpstamp:\n  stamp:\n    timestamp_order: middle\n"},
		{"TooManyQueues", "gtpstamp:\n  queue:\n    count: 65\n"},
		{"QueueRangeOverflow", "gtpstamp:\n  queue:\n    num: 65535\n    count: 2\n"},
		{"BadQueueLen", "gtpstamp:\n  queue:\n    max_queue_len: -5\n"},
		{"BadLogLevel", "gtpstamp:\n  log:\n    level: loud\n"},
		{"FileWithoutPath", "gtpstamp:\n  log:\n    file:\n      enabled: true\n      path: \"\"\n"},
		{"MetricsWithoutListen", "gtpstamp:\n  metrics:\n    enabled: true\n    listen: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestQueueCountDefaultsToOne(t *testing.T) {
	cfg, err := Load(writeConfig(t, "gtpstamp:\n  queue:\n    count: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Queue.Count)
}

func TestDumpRoundTrip(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	out, err := Dump(cfg)
	require.NoError(t, err)

	var root configRoot
	require.NoError(t, yaml.Unmarshal(out, &root))
	assert.Equal(t, *cfg, root.GTPStamp)

	reloaded, err := Load(writeConfig(t, string(out)))
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}
