// Package transport moves opaque byte payloads between nodes. The router owns
// framing and meaning; a transport only promises best-effort delivery of each
// payload to the addressed node, with per-sender ordering.
package transport

// Handler consumes one inbound payload. from is the sending node's index.
// Handlers run on the transport's receive goroutine and must not block for
// long.
type Handler func(from int32, payload []byte)

// Transport is a full-mesh node-to-node byte channel.
type Transport interface {
	// Start registers the inbound handler and begins receiving. It must be
	// called before Send.
	Start(h Handler) error

	// Send delivers payload to the node with the given index. It returns an
	// error if the peer is unreachable; the caller decides about retries.
	Send(to int32, payload []byte) error

	// Close tears the transport down. In-flight payloads may be dropped.
	Close() error
}
