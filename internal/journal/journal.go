// Package journal records activity lifecycle transitions for a run. The
// journal is optional; when disabled the runtime uses the no-op
// implementation. Recording is best-effort and must never block or fail the
// scheduling path.
package journal

import "time"

// Kind names a lifecycle transition.
type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindStarted   Kind = "started"
	KindSuspended Kind = "suspended"
	KindResumed   Kind = "resumed"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
	KindSent      Kind = "sent"     // activity shipped to a remote node
	KindReceived  Kind = "received" // activity arrived from a remote node
)

// Entry is one journal row.
type Entry struct {
	Run      string // run identifier, shared by all rows of one process
	Node     int32
	Activity string // ActivityID string form
	Label    string
	Kind     Kind
	Detail   string // free-form, e.g. the error text for failed rows
	At       time.Time
}

// Journal records entries. Implementations must be safe for concurrent use.
type Journal interface {
	Record(e Entry)
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(Entry) {}

func (Nop) Close() error { return nil }
