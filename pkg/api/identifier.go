package api

import "fmt"

// ActivityID uniquely identifies an activity across an entire run.
//
// The identifier is assigned internally on submission and is immutable
// afterwards. It is the sole addressing mechanism for event delivery: events
// carry a target ActivityID and the runtime routes them to whichever node and
// executor currently owns the activity. Never construct an ActivityID in
// application code; use the value returned by Submit.
type ActivityID struct {
	// Node is the index of the node that created the activity. Cross-node
	// routing is a pure function of this field.
	Node int32 `msgpack:"node"`

	// Executor is the index of the executor the activity was first placed on.
	Executor int32 `msgpack:"executor"`

	// Seq is a per-node sequence number, unique among all activities created
	// on Node.
	Seq uint64 `msgpack:"seq"`
}

// IsZero reports whether the identifier is the zero value, i.e. unassigned.
func (id ActivityID) IsZero() bool {
	return id == ActivityID{}
}

func (id ActivityID) String() string {
	return fmt.Sprintf("NID:%d:EID:%d:AID:%d", id.Node, id.Executor, id.Seq)
}
