package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.Executors, 0)
	assert.Equal(t, StealRoundRobin, cfg.StealStrategy)
	assert.Equal(t, PoolNodeLocal, cfg.PoolTopology)
	assert.Equal(t, PlaceLeastLoaded, cfg.Placement)
	assert.Equal(t, 1, cfg.NodeCount)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad strategy", func(c *Config) { c.StealStrategy = "biggest" }},
		{"bad topology", func(c *Config) { c.PoolTopology = "ring" }},
		{"bad placement", func(c *Config) { c.Placement = "sticky" }},
		{"negative capacity", func(c *Config) { c.QueueCapacity = -1 }},
		{"backoff inverted", func(c *Config) {
			c.StealBackoffMin = time.Second
			c.StealBackoffMax = time.Millisecond
		}},
		{"node index out of range", func(c *Config) { c.NodeIndex = 5 }},
		{"peer count mismatch", func(c *Config) {
			c.NodeCount = 3
			c.Peers = []string{"a:1", "b:2"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constellation.toml")
	doc := `
executors = 4
steal_strategy = "locality"
pool_topology = "hierarchical"
placement = "round-robin"
queue_capacity = 128
steal_backoff_min = "200us"
steal_backoff_max = "5ms"
node_count = 2
node_index = 1
peers = ["127.0.0.1:7001", "127.0.0.1:7002"]
transport_retries = 5
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Executors)
	assert.Equal(t, StealLocality, cfg.StealStrategy)
	assert.Equal(t, PoolHierarchical, cfg.PoolTopology)
	assert.Equal(t, PlaceRoundRobin, cfg.Placement)
	assert.Equal(t, 128, cfg.QueueCapacity)
	assert.Equal(t, 200*time.Microsecond, cfg.StealBackoffMin)
	assert.Equal(t, 5*time.Millisecond, cfg.StealBackoffMax)
	assert.Equal(t, 2, cfg.NodeCount)
	assert.Equal(t, 1, cfg.NodeIndex)
	assert.Equal(t, 5, cfg.TransportRetries)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestActivityIDString(t *testing.T) {
	id := ActivityID{Node: 1, Executor: 2, Seq: 42}

	assert.Equal(t, "NID:1:EID:2:AID:42", id.String())
	assert.False(t, id.IsZero())
	assert.True(t, ActivityID{}.IsZero())
}
