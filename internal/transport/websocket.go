package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/petrijr/constellation/internal/logging"
)

// WebSocket is the cross-process transport: every node listens on its own
// address from the peer list and dials the others lazily on first send. The
// first frame on a dialed connection carries the dialer's node index; after
// that both directions exchange raw binary payloads.
type WebSocket struct {
	self  int32
	peers []string
	log   zerolog.Logger

	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	handler Handler
	conns   map[int32]*wsConn
	closed  bool
}

type wsConn struct {
	mu sync.Mutex // serializes writes; gorilla allows one concurrent writer
	c  *websocket.Conn
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket builds the transport for node self. peers holds one listen
// address per node, indexed by node.
func NewWebSocket(self int32, peers []string) (*WebSocket, error) {
	if int(self) >= len(peers) {
		return nil, fmt.Errorf("websocket: node %d has no address in a %d-peer list", self, len(peers))
	}
	return &WebSocket{
		self:  self,
		peers: peers,
		log:   logging.Component("transport").With().Int32("node", self).Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[int32]*wsConn),
	}, nil
}

// Start binds the listen address and begins accepting peer connections.
func (t *WebSocket) Start(h Handler) error {
	t.mu.Lock()
	if t.handler != nil {
		t.mu.Unlock()
		return fmt.Errorf("websocket: already started")
	}
	t.handler = h
	t.mu.Unlock()

	ln, err := net.Listen("tcp", t.peers[t.self])
	if err != nil {
		return fmt.Errorf("websocket: listen on %s: %w", t.peers[t.self], err)
	}
	t.listener = ln
	t.server = &http.Server{Handler: http.HandlerFunc(t.accept)}
	go func() {
		if err := t.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.log.Error().Err(err).Msg("transport server stopped")
		}
	}()
	t.log.Info().Str("addr", ln.Addr().String()).Msg("transport listening")
	return nil
}

func (t *WebSocket) accept(w http.ResponseWriter, r *http.Request) {
	c, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	// The dialer identifies itself before any payload flows.
	_, hello, err := c.ReadMessage()
	if err != nil || len(hello) != 4 {
		t.log.Warn().Err(err).Msg("peer handshake failed")
		_ = c.Close()
		return
	}
	from := int32(binary.BigEndian.Uint32(hello))

	t.mu.Lock()
	if _, dup := t.conns[from]; !dup {
		t.conns[from] = &wsConn{c: c}
	}
	t.mu.Unlock()

	t.readLoop(from, c)
}

func (t *WebSocket) readLoop(from int32, c *websocket.Conn) {
	for {
		kind, payload, err := c.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.log.Warn().Err(err).Int32("peer", from).Msg("peer connection lost")
			}
			t.dropConn(from, c)
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		t.handler(from, payload)
	}
}

func (t *WebSocket) dropConn(from int32, c *websocket.Conn) {
	t.mu.Lock()
	if cur, ok := t.conns[from]; ok && cur.c == c {
		delete(t.conns, from)
	}
	t.mu.Unlock()
	_ = c.Close()
}

// Send delivers payload to the given node, dialing it first if no connection
// exists yet.
func (t *WebSocket) Send(to int32, payload []byte) error {
	conn, err := t.connTo(to)
	if err != nil {
		return err
	}
	conn.mu.Lock()
	err = conn.c.WriteMessage(websocket.BinaryMessage, payload)
	conn.mu.Unlock()
	if err != nil {
		t.dropConn(to, conn.c)
		return fmt.Errorf("websocket: send to node %d: %w", to, err)
	}
	return nil
}

func (t *WebSocket) connTo(to int32) (*wsConn, error) {
	if to < 0 || int(to) >= len(t.peers) {
		return nil, fmt.Errorf("websocket: no peer %d", to)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("websocket: transport closed")
	}
	if conn, ok := t.conns[to]; ok {
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	c, _, err := dialer.Dial("ws://"+t.peers[to]+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("websocket: dial node %d at %s: %w", to, t.peers[to], err)
	}

	var hello [4]byte
	binary.BigEndian.PutUint32(hello[:], uint32(t.self))
	if err := c.WriteMessage(websocket.BinaryMessage, hello[:]); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("websocket: handshake with node %d: %w", to, err)
	}

	t.mu.Lock()
	if existing, ok := t.conns[to]; ok {
		// A concurrent dial or inbound accept won the race.
		t.mu.Unlock()
		_ = c.Close()
		return existing, nil
	}
	conn := &wsConn{c: c}
	t.conns[to] = conn
	t.mu.Unlock()

	go t.readLoop(to, c)
	return conn, nil
}

// Close stops the listener and drops every peer connection.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := t.conns
	t.conns = make(map[int32]*wsConn)
	t.mu.Unlock()

	for _, conn := range conns {
		_ = conn.c.Close()
	}
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}
