package api

import (
	"errors"
	"fmt"
)

// ErrorKind tags a ConstellationError with its failure class.
type ErrorKind int

const (
	// KindShutdown: submission or delivery attempted after node teardown
	// has begun.
	KindShutdown ErrorKind = iota + 1

	// KindUnknownTarget: an event or steal-routed identifier is not
	// resolvable anywhere reachable.
	KindUnknownTarget

	// KindTransport: serialization or send failure to a remote node, after
	// bounded retries.
	KindTransport

	// KindQueueContention: a work queue detected an invariant violation.
	// This is an assertion failure, not a recoverable condition.
	KindQueueContention
)

func (k ErrorKind) String() string {
	switch k {
	case KindShutdown:
		return "shutdown"
	case KindUnknownTarget:
		return "unknown-target"
	case KindTransport:
		return "transport"
	case KindQueueContention:
		return "queue-contention"
	default:
		return "unknown"
	}
}

// ConstellationError is the tagged error surfaced by Submit, Send, Deliver,
// and the router send operations. Operations return it synchronously to the
// caller rather than terminating the process.
type ConstellationError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ConstellationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("constellation: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("constellation: %s: %s", e.Op, e.Kind)
}

func (e *ConstellationError) Unwrap() error { return e.Err }

// NewError builds a tagged error for the given operation.
func NewError(kind ErrorKind, op string, err error) error {
	return &ConstellationError{Kind: kind, Op: op, Err: err}
}

func kindOf(err error) (ErrorKind, bool) {
	var ce *ConstellationError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// IsShutdown reports whether err is a Shutdown-tagged ConstellationError.
func IsShutdown(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindShutdown
}

// IsUnknownTarget reports whether err is an UnknownTarget-tagged
// ConstellationError.
func IsUnknownTarget(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnknownTarget
}

// IsTransport reports whether err is a Transport-tagged ConstellationError.
func IsTransport(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransport
}

// IsQueueContention reports whether err is a QueueContention-tagged
// ConstellationError.
func IsQueueContention(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindQueueContention
}
