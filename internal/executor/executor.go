// Package executor runs the per-thread fetch-execute-reschedule loop. One
// goroutine per executor, long-lived for the run's duration; activities are
// multiplexed onto it cooperatively and never migrate mid-execution.
package executor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/petrijr/constellation/internal/activity"
	"github.com/petrijr/constellation/internal/logging"
	"github.com/petrijr/constellation/internal/steal"
	"github.com/petrijr/constellation/internal/workqueue"
	"github.com/petrijr/constellation/pkg/api"
)

// State is the executor's loop state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStealing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStealing:
		return "stealing"
	default:
		return "unknown"
	}
}

// Host is the thread handler surface the executor needs: where suspended
// activities go, where completions are reported, and how victims are
// reached. Local victims are direct queue steals; remote victims turn into
// router steal-request messages and report (nil, false) immediately.
type Host interface {
	Context() api.Constellation
	StealFrom(victim steal.ExecutorRef) (*activity.Wrapper, bool)
	Starting(w *activity.Wrapper)
	Park(w *activity.Wrapper)
	Complete(w *activity.Wrapper)
	Fail(w *activity.Wrapper, err error)
}

// Executor owns one work queue and drains it on its own goroutine.
type Executor struct {
	ref        steal.ExecutorRef
	queue      *workqueue.Queue
	candidates []steal.ExecutorRef
	strategy   steal.Strategy
	host       Host

	backoffMin time.Duration
	backoffMax time.Duration

	state    atomic.Int32
	sweeps   atomic.Uint64
	wake     chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
	log      zerolog.Logger
}

// New builds an executor. The queue is owned by this executor; pool and
// strategy drive victim selection when it runs dry.
func New(ref steal.ExecutorRef, queue *workqueue.Queue, pool *steal.Pool, strategy steal.Strategy, host Host, backoffMin, backoffMax time.Duration) *Executor {
	return &Executor{
		ref:        ref,
		queue:      queue,
		candidates: pool.MembersOf(ref),
		strategy:   strategy,
		host:       host,
		backoffMin: backoffMin,
		backoffMax: backoffMax,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		log:        logging.Component("executor").With().Int32("node", ref.Node).Int("executor", ref.Index).Logger(),
	}
}

// Queue returns the executor's work queue.
func (e *Executor) Queue() *workqueue.Queue { return e.queue }

// Ref returns the executor's identity in the steal pool.
func (e *Executor) Ref() steal.ExecutorRef { return e.ref }

// State returns the current loop state.
func (e *Executor) State() State { return State(e.state.Load()) }

// StealSweeps returns how many full victim sweeps the executor has
// performed. Test harnesses use it to verify the idle loop backs off
// instead of hot-spinning.
func (e *Executor) StealSweeps() uint64 { return e.sweeps.Load() }

// Wake nudges an idle executor; called after work is pushed to its queue.
func (e *Executor) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Stop asks the loop to exit. Idempotent.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() { close(e.quit) })
}

// Run is the loop: pop local work, else sweep the steal pool, else back off
// with a bounded exponential sleep. It returns only after Stop.
func (e *Executor) Run() {
	backoff := e.backoffMin
	for {
		select {
		case <-e.quit:
			e.state.Store(int32(StateIdle))
			return
		default:
		}

		if w := e.queue.PopLocal(); w != nil {
			backoff = e.backoffMin
			e.execute(w)
			continue
		}

		e.state.Store(int32(StateStealing))
		if w, ok := e.sweep(); ok {
			backoff = e.backoffMin
			e.execute(w)
			continue
		}

		e.state.Store(int32(StateIdle))
		select {
		case <-e.quit:
			return
		case <-e.wake:
			backoff = e.backoffMin
		case <-time.After(backoff):
			backoff *= 2
			if backoff > e.backoffMax {
				backoff = e.backoffMax
			}
		}
	}
}

// sweep polls steal victims until one yields work or every candidate has
// come up empty. Victims that just reported empty are skipped for the rest
// of the sweep.
func (e *Executor) sweep() (*activity.Wrapper, bool) {
	e.sweeps.Add(1)
	if len(e.candidates) == 0 {
		return nil, false
	}
	skip := make(map[steal.ExecutorRef]bool, len(e.candidates))
	for len(skip) < len(e.candidates) {
		v, ok := e.strategy.SelectVictim(e.ref, e.candidates, skip)
		if !ok {
			break
		}
		if w, ok := e.host.StealFrom(v); ok {
			e.log.Debug().Stringer("activity", w.ID).Int32("victim_node", v.Node).Int("victim", v.Index).Msg("stole activity")
			return w, true
		}
		skip[v] = true
	}
	return nil, false
}

// execute runs one activity to its next decision. Errors (including panics
// in user code) fail that activity only; the executor and its queue stay
// intact.
func (e *Executor) execute(w *activity.Wrapper) {
	e.state.Store(int32(StateRunning))
	e.host.Starting(w)
	w.SetPhase(activity.PhaseRunning)

	d, err := e.activate(w)
	if err != nil {
		w.SetPhase(activity.PhaseFailed)
		e.log.Error().Err(err).Stringer("activity", w.ID).Msg("activity failed")
		e.host.Fail(w, err)
		e.state.Store(int32(StateIdle))
		return
	}

	switch d {
	case api.Suspend:
		w.SetPhase(activity.PhaseSuspended)
		e.host.Park(w)
	case api.Finish:
		w.Cleanup(e.host.Context())
		w.SetPhase(activity.PhaseCompleted)
		e.host.Complete(w)
	}
	e.state.Store(int32(StateIdle))
}

func (e *Executor) activate(w *activity.Wrapper) (d api.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activity panic: %v", r)
		}
	}()
	return w.Activate(e.host.Context())
}
