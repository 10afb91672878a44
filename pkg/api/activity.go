package api

// Decision is returned by an activity's Initialize and Process methods to
// tell the executor what to do next.
type Decision int

const (
	// Finish signals that the current phase is done. Returned from Process it
	// completes the activity; Cleanup runs next and the activity is destroyed.
	// Returned from Initialize it means "continue straight into Process".
	Finish Decision = iota

	// Suspend parks the activity until an event addressed to its identifier
	// arrives. The executor thread is released immediately; the activity
	// resumes in Process with the delivered event.
	Suspend
)

func (d Decision) String() string {
	switch d {
	case Finish:
		return "finish"
	case Suspend:
		return "suspend"
	default:
		return "unknown"
	}
}

// Activity is a suspendable unit of user work.
//
// Initialize is called exactly once, when the activity is first picked up by
// an executor. Process is called on every (re)activation after that; the
// event argument is nil on the first Process call and carries the delivered
// event after a resumption. Cleanup is called once, after Process returns
// Finish, and then the activity is destroyed.
//
// An activity runs to its next suspension point on a single executor without
// preemption. There is no global ordering between activities; coordination
// happens only through events.
//
// Activities that may cross node boundaries (stealable activities in a
// hierarchical pool, or activities submitted to a remote node) must be
// msgpack-encodable structs registered with Register.
type Activity interface {
	// Initialize sets up the activity. Return Suspend to park immediately and
	// wait for an event, or Finish to continue into Process.
	Initialize(c Constellation, id ActivityID) (Decision, error)

	// Process performs the work. e is nil when entered directly from
	// Initialize and non-nil when resumed by an event.
	Process(c Constellation, id ActivityID, e *Event) (Decision, error)

	// Cleanup releases resources held by the activity. It runs once, after
	// Process returns Finish.
	Cleanup(c Constellation, id ActivityID)
}

// SubmitOptions carries per-submission flags.
type SubmitOptions struct {
	// Label tags the activity, e.g. for journal rows and log lines.
	Label string

	// NotStealable pins the activity to the executor it is placed on; it is
	// invisible to stealing executors and to remote steal requests.
	NotStealable bool

	// ExpectsEvents hints that the activity will suspend awaiting events.
	ExpectsEvents bool
}

// Stealable reports whether stealing executors may take the activity.
func (o SubmitOptions) Stealable() bool { return !o.NotStealable }

// Constellation is the surface activities and application code use to submit
// work and send events. The per-node runtime implements it; an instance is
// passed explicitly to every activity invocation, never held in a global.
type Constellation interface {
	// Submit hands a new activity to the runtime. It assigns an identity,
	// places the activity on an executor, and returns the identifier events
	// can be addressed to. It fails with a Shutdown error once node teardown
	// has begun.
	Submit(a Activity, opts SubmitOptions) (ActivityID, error)

	// Send delivers an event to its target activity, locally or across
	// nodes. It fails with an UnknownTarget error if the identifier is not
	// resolvable anywhere reachable.
	Send(e Event) error
}
