package constellation

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/petrijr/constellation/internal/handler"
	"github.com/petrijr/constellation/internal/journal"
	"github.com/petrijr/constellation/internal/logging"
	"github.com/petrijr/constellation/internal/router"
	"github.com/petrijr/constellation/internal/transport"
	"github.com/petrijr/constellation/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Activity           = api.Activity
	ActivityID         = api.ActivityID
	Event              = api.Event
	Decision           = api.Decision
	SubmitOptions      = api.SubmitOptions
	Config             = api.Config
	ConstellationError = api.ConstellationError
)

// Re-export the decision values.

const (
	Finish  = api.Finish
	Suspend = api.Suspend
)

// Re-export constructors and error predicates.

var (
	NewEvent      = api.NewEvent
	DefaultConfig = api.DefaultConfig
	LoadConfig    = api.LoadConfig

	IsShutdown        = api.IsShutdown
	IsUnknownTarget   = api.IsUnknownTarget
	IsTransport       = api.IsTransport
	IsQueueContention = api.IsQueueContention
)

// Register makes an activity type transferable between nodes. Activities
// that stay on one node never need it; anything that can be stolen across
// nodes or submitted to a remote node must be a registered msgpack-encodable
// struct, registered under the same name on every node before the runtime
// starts.
func Register(name string, prototype Activity) {
	router.Register(name, prototype)
}

// Constellation is one node's runtime handle.
type Constellation interface {
	api.Constellation

	// SubmitOn places a new activity on a specific node. On a single-node
	// runtime it behaves like Submit.
	SubmitOn(node int32, a Activity, opts SubmitOptions) (ActivityID, error)

	// Done blocks until every activity on this node has completed or failed,
	// or ctx expires. Suspended activities count as outstanding.
	Done(ctx context.Context) error

	// NodeIndex returns this node's index in the run.
	NodeIndex() int32

	// Nodes returns the number of nodes in the run.
	Nodes() int

	// IsMaster reports whether this is node 0. By convention the master
	// submits the initial work.
	IsMaster() bool

	// Close tears the node down: further Submit and Send calls fail with
	// Shutdown errors, executors stop after their current activity, and the
	// transport and journal are released.
	Close() error
}

type node struct {
	cfg  api.Config
	h    *handler.Handler
	r    *router.Router
	jrnl journal.Journal
	db   *sql.DB
}

var _ Constellation = (*node)(nil)

// New builds the runtime for one node. With NodeCount 1 (the default) the
// node is self-contained; with more, Peers must hold one listen address per
// node and the WebSocket transport connects them.
func New(cfg Config) (Constellation, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debug {
		logging.ConfigureDebug()
	} else {
		logging.ConfigureRuntime()
	}

	var tr transport.Transport
	if cfg.NodeCount > 1 {
		if len(cfg.Peers) != cfg.NodeCount {
			return nil, fmt.Errorf("constellation: %d-node run needs %d peer addresses, got %d", cfg.NodeCount, cfg.NodeCount, len(cfg.Peers))
		}
		ws, err := transport.NewWebSocket(int32(cfg.NodeIndex), cfg.Peers)
		if err != nil {
			return nil, err
		}
		tr = ws
	}
	return newNode(cfg, tr)
}

// NewLoopbackCluster builds every node of a multi-node run inside one
// process, connected by an in-memory transport. Intended for tests and
// development; the returned slice is indexed by node.
func NewLoopbackCluster(cfg Config) ([]Constellation, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debug {
		logging.ConfigureDebug()
	} else {
		logging.ConfigureRuntime()
	}

	mesh := transport.NewLoopbackMesh(cfg.NodeCount)
	nodes := make([]Constellation, cfg.NodeCount)
	for i := 0; i < cfg.NodeCount; i++ {
		ncfg := cfg
		ncfg.NodeIndex = i
		n, err := newNode(ncfg, mesh.Endpoint(int32(i)))
		if err != nil {
			for _, built := range nodes[:i] {
				_ = built.Close()
			}
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func newNode(cfg api.Config, tr transport.Transport) (*node, error) {
	jrnl, db, err := openJournal(cfg.JournalDSN)
	if err != nil {
		return nil, err
	}

	var r *router.Router
	var hr handler.Router
	if tr != nil {
		r = router.New(int32(cfg.NodeIndex), tr, cfg.TransportRetries)
		hr = r
	}

	h, err := handler.New(cfg, hr, jrnl)
	if err != nil {
		closeQuiet(jrnl, db)
		return nil, err
	}
	if r != nil {
		if err := r.Bind(h); err != nil {
			closeQuiet(jrnl, db)
			return nil, err
		}
	}
	h.Start()
	return &node{cfg: cfg, h: h, r: r, jrnl: jrnl, db: db}, nil
}

func openJournal(dsn string) (journal.Journal, *sql.DB, error) {
	if dsn == "" {
		return journal.Nop{}, nil, nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("constellation: open journal %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	j, err := journal.NewSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return j, db, nil
}

func closeQuiet(j journal.Journal, db *sql.DB) {
	_ = j.Close()
	if db != nil {
		_ = db.Close()
	}
}

func (n *node) Submit(a Activity, opts SubmitOptions) (ActivityID, error) {
	return n.h.Submit(a, opts)
}

func (n *node) SubmitOn(target int32, a Activity, opts SubmitOptions) (ActivityID, error) {
	return n.h.SubmitOn(target, a, opts)
}

func (n *node) Send(e Event) error { return n.h.Send(e) }

func (n *node) Done(ctx context.Context) error { return n.h.Done(ctx) }

func (n *node) NodeIndex() int32 { return n.h.Node() }

func (n *node) Nodes() int { return n.cfg.NodeCount }

func (n *node) IsMaster() bool { return n.cfg.NodeIndex == 0 }

func (n *node) Close() error {
	n.h.Stop()
	var err error
	if n.r != nil {
		err = n.r.Close()
	}
	closeQuiet(n.jrnl, n.db)
	return err
}
