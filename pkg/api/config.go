package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// StealStrategyKind selects the victim-selection policy used by idle
// executors.
type StealStrategyKind string

const (
	// StealRoundRobin rotates through the steal pool starting after the
	// previous victim.
	StealRoundRobin StealStrategyKind = "round-robin"

	// StealRandom picks a uniform-random victim from the pool.
	StealRandom StealStrategyKind = "random"

	// StealLocality prefers same-node victims and falls back to cross-node
	// ones only when every local victim is empty.
	StealLocality StealStrategyKind = "locality"
)

// PoolTopology selects how steal pools are laid out.
type PoolTopology string

const (
	// PoolNodeLocal puts every executor of a node in one pool. Stealing
	// never crosses node boundaries.
	PoolNodeLocal PoolTopology = "node-local"

	// PoolHierarchical extends the pool with the executors of every other
	// node. Cross-node victims are reached through steal-request messages on
	// the router, never by direct queue access.
	PoolHierarchical PoolTopology = "hierarchical"
)

// PlacementPolicy selects the executor a freshly submitted activity lands on.
type PlacementPolicy string

const (
	// PlaceLeastLoaded picks the executor with the shortest ready queue.
	PlaceLeastLoaded PlacementPolicy = "least-loaded"

	// PlaceRoundRobin rotates over local executors.
	PlaceRoundRobin PlacementPolicy = "round-robin"
)

// Config is the configuration surface consumed at construction. Nothing in
// it is runtime-mutable.
//
// For multi-node runs the external launcher decides node count and assigns
// each process its index; NodeCount, NodeIndex, and Peers carry that
// information in. Single-node runs leave them at their defaults.
type Config struct {
	// Executors is the number of executor goroutines on this node.
	// Defaults to runtime.NumCPU().
	Executors int `toml:"executors"`

	// StealStrategy picks the victim-selection policy. Defaults to
	// StealRoundRobin.
	StealStrategy StealStrategyKind `toml:"steal_strategy"`

	// PoolTopology picks the steal-pool layout. Defaults to PoolNodeLocal.
	PoolTopology PoolTopology `toml:"pool_topology"`

	// Placement picks where new activities land. Defaults to
	// PlaceLeastLoaded.
	Placement PlacementPolicy `toml:"placement"`

	// QueueCapacity bounds each executor's work queue. Zero means unbounded.
	QueueCapacity int `toml:"queue_capacity"`

	// StealBackoffMin and StealBackoffMax bound the exponential backoff an
	// executor sleeps between failed steal sweeps. Defaults: 100µs / 10ms.
	StealBackoffMin time.Duration `toml:"steal_backoff_min"`
	StealBackoffMax time.Duration `toml:"steal_backoff_max"`

	// NodeCount is the number of nodes in the run. Defaults to 1.
	NodeCount int `toml:"node_count"`

	// NodeIndex is this process's node index, in [0, NodeCount).
	NodeIndex int `toml:"node_index"`

	// Peers lists one listen address per node, indexed by node. Required
	// when NodeCount > 1 and the WebSocket transport is used.
	Peers []string `toml:"peers"`

	// TransportRetries bounds resends of a failed transport operation before
	// it surfaces as a Transport error. Defaults to 3.
	TransportRetries int `toml:"transport_retries"`

	// JournalDSN, when non-empty, enables the SQLite run journal at the
	// given path (":memory:" works for tests).
	JournalDSN string `toml:"journal_dsn"`

	// Debug lowers the log level to debug.
	Debug bool `toml:"debug"`
}

// DefaultConfig returns a single-node configuration with all defaults
// applied.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Executors <= 0 {
		c.Executors = runtime.NumCPU()
	}
	if c.StealStrategy == "" {
		c.StealStrategy = StealRoundRobin
	}
	if c.PoolTopology == "" {
		c.PoolTopology = PoolNodeLocal
	}
	if c.Placement == "" {
		c.Placement = PlaceLeastLoaded
	}
	if c.StealBackoffMin <= 0 {
		c.StealBackoffMin = 100 * time.Microsecond
	}
	if c.StealBackoffMax <= 0 {
		c.StealBackoffMax = 10 * time.Millisecond
	}
	if c.NodeCount <= 0 {
		c.NodeCount = 1
	}
	if c.TransportRetries <= 0 {
		c.TransportRetries = 3
	}
}

// Validate checks the configuration for inconsistencies. It does not mutate;
// call ApplyDefaults first.
func (c *Config) Validate() error {
	switch c.StealStrategy {
	case StealRoundRobin, StealRandom, StealLocality:
	default:
		return fmt.Errorf("config: unknown steal strategy %q", c.StealStrategy)
	}
	switch c.PoolTopology {
	case PoolNodeLocal, PoolHierarchical:
	default:
		return fmt.Errorf("config: unknown pool topology %q", c.PoolTopology)
	}
	switch c.Placement {
	case PlaceLeastLoaded, PlaceRoundRobin:
	default:
		return fmt.Errorf("config: unknown placement policy %q", c.Placement)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("config: negative queue capacity %d", c.QueueCapacity)
	}
	if c.StealBackoffMax < c.StealBackoffMin {
		return fmt.Errorf("config: steal backoff max %v below min %v", c.StealBackoffMax, c.StealBackoffMin)
	}
	if c.NodeIndex < 0 || c.NodeIndex >= c.NodeCount {
		return fmt.Errorf("config: node index %d out of range [0, %d)", c.NodeIndex, c.NodeCount)
	}
	if c.NodeCount > 1 && len(c.Peers) > 0 && len(c.Peers) != c.NodeCount {
		return fmt.Errorf("config: %d peers for %d nodes", len(c.Peers), c.NodeCount)
	}
	return nil
}

// LoadConfig reads a TOML configuration file, applies defaults, and
// validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
