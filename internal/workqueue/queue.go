// Package workqueue implements the per-executor ready list: a double-ended
// queue where the owning executor pushes and pops at one end (LIFO, good
// locality for freshly spawned work) and stealing executors take from the
// other end (FIFO, the oldest and usually largest pieces of work).
//
// A single mutex guards the structure. That is the recommended first-correct
// discipline for the racing owner/stealer pair: a concurrent PopLocal and
// Steal on a near-empty queue hand any given activity to exactly one caller,
// never both. A lock-free variant is a performance extension, not a
// requirement.
package workqueue

import (
	"errors"
	"sync"

	"github.com/petrijr/constellation/internal/activity"
)

// ErrFull is returned by PushLocal when a bounded queue is at capacity.
var ErrFull = errors.New("workqueue: queue full")

// Queue is one executor's ready list. The zero value is not usable; use New.
type Queue struct {
	mu    sync.Mutex
	items []*activity.Wrapper
	cap   int
}

// New returns a queue. capacity <= 0 means unbounded (the default).
func New(capacity int) *Queue {
	return &Queue{cap: capacity}
}

// PushLocal appends an activity at the owner end. Called by the owning
// executor and by the thread handler when placing work on the owner's
// behalf. Amortized O(1); fails only with ErrFull on a bounded queue.
func (q *Queue) PushLocal(w *activity.Wrapper) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cap > 0 && len(q.items) >= q.cap {
		return ErrFull
	}
	q.items = append(q.items, w)
	return nil
}

// PopLocal removes and returns the most recently pushed activity, or nil if
// the queue is empty. Owner side only.
func (q *Queue) PopLocal() *activity.Wrapper {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return nil
	}
	w := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	return w
}

// Steal removes and returns the oldest stealable activity, or nil if the
// queue is empty or holds only pinned work. Callable from any other
// executor.
func (q *Queue) Steal() *activity.Wrapper {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, w := range q.items {
		if !w.Stealable {
			continue
		}
		copy(q.items[i:], q.items[i+1:])
		q.items[len(q.items)-1] = nil
		q.items = q.items[:len(q.items)-1]
		return w
	}
	return nil
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain empties the queue and returns everything it held, oldest first.
// Used during shutdown accounting.
func (q *Queue) Drain() []*activity.Wrapper {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}
