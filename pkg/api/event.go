package api

import "fmt"

// Event is a message payload delivered to a specific waiting activity.
//
// Events are transient: each one is consumed exactly once, by the resumption
// of its target activity. Delivery is at-most-once; there is no ordering
// guarantee between events addressed to different targets.
//
// Payloads that cross node boundaries are msgpack-encoded, so they should be
// built from strings, numbers, booleans, slices, and maps; struct payloads
// decode as map[string]any on the receiving node.
type Event struct {
	// Target identifies the activity this event resumes.
	Target ActivityID `msgpack:"target"`

	// Source identifies the activity that produced the event.
	Source ActivityID `msgpack:"source"`

	// Payload is the data carried to the target.
	Payload any `msgpack:"payload"`
}

// NewEvent builds an event from source to target carrying payload.
func NewEvent(payload any, source, target ActivityID) Event {
	return Event{Target: target, Source: source, Payload: payload}
}

func (e Event) String() string {
	return fmt.Sprintf("event %s -> %s", e.Source, e.Target)
}
