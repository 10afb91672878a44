package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// LoopbackMesh connects n in-process endpoints. It exists so multi-node
// behavior can be exercised in a single test binary: endpoints exchange the
// same encoded payloads the WebSocket transport would carry, just without a
// socket underneath.
type LoopbackMesh struct {
	endpoints []*loopbackEndpoint
	sends     []atomic.Uint64 // flattened n*n matrix, indexed from*n+to
	n         int
}

// NewLoopbackMesh builds a mesh of n endpoints.
func NewLoopbackMesh(n int) *LoopbackMesh {
	m := &LoopbackMesh{
		endpoints: make([]*loopbackEndpoint, n),
		sends:     make([]atomic.Uint64, n*n),
		n:         n,
	}
	for i := range m.endpoints {
		m.endpoints[i] = &loopbackEndpoint{
			mesh:  m,
			self:  int32(i),
			inbox: make(chan loopbackFrame, 256),
			done:  make(chan struct{}),
		}
	}
	return m
}

// Endpoint returns node i's transport.
func (m *LoopbackMesh) Endpoint(i int32) Transport { return m.endpoints[i] }

// SendCount reports how many payloads from has sent to to. Tests use it to
// check that a scenario produced exactly the expected hops.
func (m *LoopbackMesh) SendCount(from, to int32) uint64 {
	return m.sends[int(from)*m.n+int(to)].Load()
}

// Close shuts down every endpoint.
func (m *LoopbackMesh) Close() {
	for _, ep := range m.endpoints {
		_ = ep.Close()
	}
}

type loopbackFrame struct {
	from    int32
	payload []byte
}

type loopbackEndpoint struct {
	mesh  *LoopbackMesh
	self  int32
	inbox chan loopbackFrame

	mu      sync.Mutex
	handler Handler
	done    chan struct{}
	closed  bool
}

var _ Transport = (*loopbackEndpoint)(nil)

func (e *loopbackEndpoint) Start(h Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handler != nil {
		return fmt.Errorf("loopback: endpoint %d already started", e.self)
	}
	e.handler = h
	go e.pump(h)
	return nil
}

// pump serializes inbound delivery so per-sender ordering holds even when the
// handler itself sends.
func (e *loopbackEndpoint) pump(h Handler) {
	for {
		select {
		case <-e.done:
			return
		case f := <-e.inbox:
			h(f.from, f.payload)
		}
	}
}

func (e *loopbackEndpoint) Send(to int32, payload []byte) error {
	if to < 0 || int(to) >= e.mesh.n {
		return fmt.Errorf("loopback: no endpoint %d", to)
	}
	peer := e.mesh.endpoints[to]

	// Payloads are copied so sender and receiver never share a buffer.
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case peer.inbox <- loopbackFrame{from: e.self, payload: buf}:
		e.mesh.sends[int(e.self)*e.mesh.n+int(to)].Add(1)
		return nil
	case <-peer.done:
		return fmt.Errorf("loopback: endpoint %d closed", to)
	}
}

func (e *loopbackEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	return nil
}
