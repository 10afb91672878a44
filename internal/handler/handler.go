// Package handler implements the per-node runtime core: it assigns activity
// identities, places submissions on executor queues, parks suspended
// activities in the wait table, matches inbound events to waiters, and talks
// to the node router for everything that crosses node boundaries.
//
// Lock discipline: the handler's own mutex guards the wait table, the event
// buffer, the residency set, and the forwarding table. Executor queues have
// their own locks. The handler never holds its mutex while pushing to a
// queue or while calling into the router.
package handler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petrijr/constellation/internal/activity"
	"github.com/petrijr/constellation/internal/executor"
	"github.com/petrijr/constellation/internal/journal"
	"github.com/petrijr/constellation/internal/logging"
	"github.com/petrijr/constellation/internal/steal"
	"github.com/petrijr/constellation/internal/workqueue"
	"github.com/petrijr/constellation/pkg/api"
)

// Router is the cross-node surface the handler depends on. A nil router is
// legal for single-node runs; nothing routes off-node then.
type Router interface {
	Route(id api.ActivityID) int32
	SendActivity(to int32, w *activity.Wrapper) error
	SendEvent(to int32, e *api.Event) error
	RequestSteal(to int32) error
}

// Handler is one node's thread handler.
type Handler struct {
	cfg    api.Config
	node   int32
	runID  string
	router Router
	jrnl   journal.Journal
	log    zerolog.Logger

	queues []*workqueue.Queue
	execs  []*executor.Executor

	seq      atomic.Uint64
	cursor   atomic.Uint32 // round-robin placement position
	shutdown atomic.Bool

	mu       sync.Mutex
	waiting  map[api.ActivityID]*activity.Wrapper // suspended, awaiting an event
	buffered map[api.ActivityID][]*api.Event      // events that arrived before suspension
	resident map[api.ActivityID]struct{}          // every activity currently alive on this node
	forward  map[api.ActivityID]int32             // home-node pointer for activities that migrated away
	inflight int                                  // len(resident), kept separately for Done
}

var _ api.Constellation = (*Handler)(nil)
var _ executor.Host = (*Handler)(nil)

// New builds the handler for one node. The router may be nil for single-node
// runs; cfg must already have defaults applied and be valid.
func New(cfg api.Config, r Router, jrnl journal.Journal) (*Handler, error) {
	if jrnl == nil {
		jrnl = journal.Nop{}
	}
	h := &Handler{
		cfg:      cfg,
		node:     int32(cfg.NodeIndex),
		runID:    uuid.NewString(),
		router:   r,
		jrnl:     jrnl,
		log:      logging.Component("handler").With().Int("node", cfg.NodeIndex).Logger(),
		queues:   make([]*workqueue.Queue, cfg.Executors),
		waiting:  make(map[api.ActivityID]*activity.Wrapper),
		buffered: make(map[api.ActivityID][]*api.Event),
		resident: make(map[api.ActivityID]struct{}),
		forward:  make(map[api.ActivityID]int32),
	}

	var pool *steal.Pool
	switch cfg.PoolTopology {
	case api.PoolHierarchical:
		pool = steal.NewHierarchicalPool(cfg.NodeCount, cfg.Executors)
	default:
		pool = steal.NewNodeLocalPool(h.node, cfg.Executors)
	}

	for i := 0; i < cfg.Executors; i++ {
		h.queues[i] = workqueue.New(cfg.QueueCapacity)
		strategy, err := steal.New(cfg.StealStrategy, int64(i)+1)
		if err != nil {
			return nil, err
		}
		ref := steal.ExecutorRef{Node: h.node, Index: i}
		h.execs = append(h.execs, executor.New(ref, h.queues[i], pool, strategy, h, cfg.StealBackoffMin, cfg.StealBackoffMax))
	}
	return h, nil
}

// Node returns this node's index.
func (h *Handler) Node() int32 { return h.node }

// RunID returns the identifier shared by this process's journal rows.
func (h *Handler) RunID() string { return h.runID }

// Start launches the executor goroutines.
func (h *Handler) Start() {
	for _, e := range h.execs {
		go e.Run()
	}
	host, _ := os.Hostname()
	h.log.Info().Int("executors", len(h.execs)).Str("run", h.runID).Str("host", host).Msg("node started")
}

// Stop begins teardown: further Submit and Send calls fail with Shutdown
// errors and the executor loops exit after their current activity.
func (h *Handler) Stop() {
	if h.shutdown.Swap(true) {
		return
	}
	for _, e := range h.execs {
		e.Stop()
	}
	h.log.Info().Str("run", h.runID).Msg("node stopping")
}

// Submit places a new activity on this node.
func (h *Handler) Submit(a api.Activity, opts api.SubmitOptions) (api.ActivityID, error) {
	if h.shutdown.Load() {
		return api.ActivityID{}, api.NewError(api.KindShutdown, "submit", nil)
	}

	idx := h.place()
	id := api.ActivityID{Node: h.node, Executor: int32(idx), Seq: h.seq.Add(1)}
	w := activity.Wrap(id, a, opts)

	h.mu.Lock()
	h.resident[id] = struct{}{}
	h.inflight++
	h.mu.Unlock()

	if err := h.enqueue(w, idx); err != nil {
		h.mu.Lock()
		delete(h.resident, id)
		h.inflight--
		h.mu.Unlock()
		return api.ActivityID{}, err
	}

	h.record(id, opts.Label, journal.KindSubmitted, "")
	return id, nil
}

// SubmitOn places a new activity on the given node. The identifier's home
// stays here, so events for it route through this node's forwarding table.
func (h *Handler) SubmitOn(node int32, a api.Activity, opts api.SubmitOptions) (api.ActivityID, error) {
	if node == h.node || h.router == nil {
		return h.Submit(a, opts)
	}
	if h.shutdown.Load() {
		return api.ActivityID{}, api.NewError(api.KindShutdown, "submit-on", nil)
	}

	id := api.ActivityID{Node: h.node, Executor: 0, Seq: h.seq.Add(1)}
	w := activity.Wrap(id, a, opts)

	h.mu.Lock()
	h.forward[id] = node
	h.mu.Unlock()

	if err := h.router.SendActivity(node, w); err != nil {
		h.mu.Lock()
		delete(h.forward, id)
		h.mu.Unlock()
		return api.ActivityID{}, err
	}

	h.record(id, opts.Label, journal.KindSubmitted, "")
	h.record(id, opts.Label, journal.KindSent, fmt.Sprintf("to node %d", node))
	return id, nil
}

// Send routes an event toward its target: locally if the target's home is
// this node, across the router otherwise.
func (h *Handler) Send(e api.Event) error {
	if h.shutdown.Load() {
		return api.NewError(api.KindShutdown, "send", nil)
	}
	if h.router != nil {
		if to := h.router.Route(e.Target); to != h.node {
			return h.router.SendEvent(to, &e)
		}
	} else if e.Target.Node != h.node {
		return api.NewError(api.KindUnknownTarget, "send", fmt.Errorf("target %s routes off a single-node run", e.Target))
	}
	return h.Deliver(&e)
}

// Deliver hands an event to an activity homed on this node. A waiting target
// is resumed; a resident but not yet suspended target gets the event
// buffered; a migrated target gets the event forwarded; anything else is an
// UnknownTarget error.
func (h *Handler) Deliver(e *api.Event) error {
	h.mu.Lock()
	if w, ok := h.waiting[e.Target]; ok {
		delete(h.waiting, e.Target)
		w.SetPending(e)
		h.mu.Unlock()

		w.SetPhase(activity.PhaseReady)
		h.record(w.ID, w.Label, journal.KindResumed, "")
		return h.enqueue(w, h.place())
	}
	if to, ok := h.forward[e.Target]; ok {
		h.mu.Unlock()
		if h.router == nil {
			return api.NewError(api.KindUnknownTarget, "deliver", fmt.Errorf("target %s migrated but no router is attached", e.Target))
		}
		return h.router.SendEvent(to, e)
	}
	if _, ok := h.resident[e.Target]; ok {
		// The target exists here but is queued or running. Buffer until it
		// suspends; Park drains the buffer.
		h.buffered[e.Target] = append(h.buffered[e.Target], e)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()
	return api.NewError(api.KindUnknownTarget, "deliver", fmt.Errorf("no activity %s on this node", e.Target))
}

// Context implements executor.Host.
func (h *Handler) Context() api.Constellation { return h }

// StealFrom implements executor.Host. Local victims are direct queue steals.
// A remote victim turns into an asynchronous steal-request; the stolen
// activity, if any, arrives later through InjectActivity, so the immediate
// answer is always a miss.
func (h *Handler) StealFrom(victim steal.ExecutorRef) (*activity.Wrapper, bool) {
	if victim.Node == h.node {
		if w := h.queues[victim.Index].Steal(); w != nil {
			return w, true
		}
		return nil, false
	}
	if h.router != nil && !h.shutdown.Load() {
		if err := h.router.RequestSteal(victim.Node); err != nil {
			h.log.Debug().Err(err).Int32("victim", victim.Node).Msg("steal request failed")
		}
	}
	return nil, false
}

// Starting implements executor.Host. Only the first activation is a journal
// row; resumptions are already covered by their resumed rows.
func (h *Handler) Starting(w *activity.Wrapper) {
	if !w.Initialized() {
		h.record(w.ID, w.Label, journal.KindStarted, "")
	}
}

// Park implements executor.Host. If an event for the activity arrived while
// it was running, the suspension is cancelled and the activity goes straight
// back to ready with that event attached.
func (h *Handler) Park(w *activity.Wrapper) {
	h.mu.Lock()
	if events := h.buffered[w.ID]; len(events) > 0 {
		e := events[0]
		if len(events) == 1 {
			delete(h.buffered, w.ID)
		} else {
			h.buffered[w.ID] = events[1:]
		}
		w.SetPending(e)
		h.mu.Unlock()

		w.SetPhase(activity.PhaseReady)
		h.record(w.ID, w.Label, journal.KindResumed, "buffered event")
		if err := h.enqueue(w, h.place()); err != nil {
			h.log.Error().Err(err).Stringer("activity", w.ID).Msg("requeue after buffered event failed")
		}
		return
	}
	h.waiting[w.ID] = w
	h.mu.Unlock()
	h.record(w.ID, w.Label, journal.KindSuspended, "")
}

// Complete implements executor.Host.
func (h *Handler) Complete(w *activity.Wrapper) {
	h.release(w.ID)
	h.record(w.ID, w.Label, journal.KindCompleted, "")
}

// Fail implements executor.Host. The failure is contained to the one
// activity; its pending buffered events are dropped with it.
func (h *Handler) Fail(w *activity.Wrapper, err error) {
	h.release(w.ID)
	h.record(w.ID, w.Label, journal.KindFailed, err.Error())
}

func (h *Handler) release(id api.ActivityID) {
	h.mu.Lock()
	delete(h.resident, id)
	delete(h.buffered, id)
	h.inflight--
	h.mu.Unlock()
}

// InjectActivity accepts an activity arriving from another node (a remote
// submission or a steal response) and schedules it here.
func (h *Handler) InjectActivity(w *activity.Wrapper) {
	h.mu.Lock()
	h.resident[w.ID] = struct{}{}
	h.inflight++
	if w.ID.Node == h.node {
		// The activity came home; events resolve locally again.
		delete(h.forward, w.ID)
	}
	h.mu.Unlock()

	h.record(w.ID, w.Label, journal.KindReceived, "")
	if err := h.enqueue(w, h.place()); err != nil {
		h.log.Error().Err(err).Stringer("activity", w.ID).Msg("inbound activity could not be queued")
	}
}

// InjectEvent accepts an event arriving from another node.
func (h *Handler) InjectEvent(e *api.Event) error {
	return h.Deliver(e)
}

// StealForRemote releases one stealable activity to the requesting node.
// Only activities homed here are handed out, so the forwarding table this
// node keeps is the single source of truth for their location.
func (h *Handler) StealForRemote(to int32) *activity.Wrapper {
	if h.shutdown.Load() {
		return nil
	}
	for _, q := range h.queues {
		w := q.Steal()
		if w == nil {
			continue
		}
		if w.ID.Node != h.node {
			// Borrowed work does not migrate onward; its home could not
			// track the second hop. Put it back.
			if err := q.PushLocal(w); err != nil {
				if err := h.enqueue(w, 0); err != nil {
					h.log.Error().Err(err).Stringer("activity", w.ID).Msg("requeue of borrowed work failed")
				}
			}
			continue
		}
		h.mu.Lock()
		delete(h.resident, w.ID)
		h.inflight--
		h.forward[w.ID] = to
		h.mu.Unlock()
		h.record(w.ID, w.Label, journal.KindSent, fmt.Sprintf("stolen by node %d", to))
		return w
	}
	return nil
}

// Done blocks until every activity on this node has completed or failed, or
// until ctx expires. Suspended activities count as outstanding: a run that
// never delivers their events never becomes done.
func (h *Handler) Done(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		h.mu.Lock()
		n := h.inflight
		h.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("handler: %d activities still outstanding: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

// QueueLengths reports each executor queue's length, in executor order.
func (h *Handler) QueueLengths() []int {
	out := make([]int, len(h.queues))
	for i, q := range h.queues {
		out[i] = q.Len()
	}
	return out
}

// place picks the executor index for the next placement.
func (h *Handler) place() int {
	if h.cfg.Placement == api.PlaceRoundRobin {
		return int(h.cursor.Add(1)-1) % len(h.queues)
	}
	best, bestLen := 0, int(^uint(0)>>1)
	for i, q := range h.queues {
		if n := q.Len(); n < bestLen {
			best, bestLen = i, n
		}
	}
	return best
}

// enqueue pushes w starting at the preferred executor and walks the ring on
// ErrFull. All queues full is surfaced as a QueueContention error.
func (h *Handler) enqueue(w *activity.Wrapper, preferred int) error {
	for i := 0; i < len(h.queues); i++ {
		idx := (preferred + i) % len(h.queues)
		if err := h.queues[idx].PushLocal(w); err == nil {
			h.execs[idx].Wake()
			return nil
		}
	}
	return api.NewError(api.KindQueueContention, "enqueue", workqueue.ErrFull)
}

func (h *Handler) record(id api.ActivityID, label string, kind journal.Kind, detail string) {
	h.jrnl.Record(journal.Entry{
		Run:      h.runID,
		Node:     h.node,
		Activity: id.String(),
		Label:    label,
		Kind:     kind,
		Detail:   detail,
		At:       time.Now().UTC(),
	})
}
