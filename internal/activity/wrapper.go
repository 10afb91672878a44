// Package activity wraps user activities with the bookkeeping the runtime
// needs: identity, submission flags, lifecycle phase, and the one-shot
// initialize-then-process discipline.
package activity

import (
	"fmt"

	"github.com/petrijr/constellation/pkg/api"
)

// Phase is the lifecycle state of a wrapped activity. Exactly one owner
// (queue, executor, wait table, or in-transit router message) holds a wrapper
// at any instant, so phase transitions need no locking.
type Phase int

const (
	PhaseReady Phase = iota
	PhaseRunning
	PhaseSuspended
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseRunning:
		return "running"
	case PhaseSuspended:
		return "suspended"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Wrapper carries a user activity through the runtime. Application code
// never sees it; it is created on submission and destroyed on completion.
type Wrapper struct {
	ID            api.ActivityID
	Label         string
	Stealable     bool
	ExpectsEvents bool

	impl        api.Activity
	initialized bool
	pending     *api.Event
	phase       Phase
}

// Wrap builds a wrapper for a freshly submitted activity.
func Wrap(id api.ActivityID, a api.Activity, opts api.SubmitOptions) *Wrapper {
	return &Wrapper{
		ID:            id,
		Label:         opts.Label,
		Stealable:     opts.Stealable(),
		ExpectsEvents: opts.ExpectsEvents,
		impl:          a,
		phase:         PhaseReady,
	}
}

// Restore rebuilds a wrapper that was serialized for network transfer.
func Restore(id api.ActivityID, a api.Activity, label string, stealable, expectsEvents, initialized bool) *Wrapper {
	return &Wrapper{
		ID:            id,
		Label:         label,
		Stealable:     stealable,
		ExpectsEvents: expectsEvents,
		impl:          a,
		initialized:   initialized,
		phase:         PhaseReady,
	}
}

// Impl returns the wrapped user activity.
func (w *Wrapper) Impl() api.Activity { return w.impl }

// Initialized reports whether Initialize has already run.
func (w *Wrapper) Initialized() bool { return w.initialized }

// Phase returns the current lifecycle phase.
func (w *Wrapper) Phase() Phase { return w.phase }

// SetPhase records a lifecycle transition.
func (w *Wrapper) SetPhase(p Phase) { w.phase = p }

// SetPending attaches the event the activity will resume with.
func (w *Wrapper) SetPending(e *api.Event) { w.pending = e }

// Activate runs the activity to its next decision on the calling goroutine.
//
// The first activation calls Initialize once; if that returns Finish the
// activity continues straight into Process. An activity that declared
// ExpectsEvents suspends after Initialize until its first event arrives
// instead of seeing a nil-event Process call. Resumptions always enter
// Process, carrying the pending event if one was attached.
func (w *Wrapper) Activate(c api.Constellation) (api.Decision, error) {
	e := w.pending
	w.pending = nil

	if !w.initialized {
		w.initialized = true
		d, err := w.impl.Initialize(c, w.ID)
		if err != nil {
			return api.Finish, err
		}
		if d == api.Suspend {
			return api.Suspend, nil
		}
		if w.ExpectsEvents && e == nil {
			return api.Suspend, nil
		}
	}

	return w.impl.Process(c, w.ID, e)
}

// Cleanup runs the activity's cleanup hook.
func (w *Wrapper) Cleanup(c api.Constellation) {
	w.impl.Cleanup(c, w.ID)
}

func (w *Wrapper) String() string {
	return fmt.Sprintf("%s:stealable:%t:exp_event:%t", w.ID, w.Stealable, w.ExpectsEvents)
}
