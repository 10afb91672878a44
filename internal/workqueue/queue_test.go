package workqueue

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/petrijr/constellation/internal/activity"
	"github.com/petrijr/constellation/pkg/api"
)

// nopActivity is the smallest possible activity for queue tests.
type nopActivity struct{}

func (nopActivity) Initialize(api.Constellation, api.ActivityID) (api.Decision, error) {
	return api.Finish, nil
}

func (nopActivity) Process(api.Constellation, api.ActivityID, *api.Event) (api.Decision, error) {
	return api.Finish, nil
}

func (nopActivity) Cleanup(api.Constellation, api.ActivityID) {}

func wrap(seq uint64, stealable bool) *activity.Wrapper {
	return activity.Wrap(
		api.ActivityID{Node: 0, Executor: 0, Seq: seq},
		nopActivity{},
		api.SubmitOptions{NotStealable: !stealable},
	)
}

func TestPopLocalIsLIFO(t *testing.T) {
	q := New(0)
	for i := uint64(1); i <= 3; i++ {
		if err := q.PushLocal(wrap(i, true)); err != nil {
			t.Fatalf("PushLocal %d: %v", i, err)
		}
	}

	for want := uint64(3); want >= 1; want-- {
		got := q.PopLocal()
		if got == nil || got.ID.Seq != want {
			t.Fatalf("PopLocal: want seq %d, got %v", want, got)
		}
	}
	if q.PopLocal() != nil {
		t.Fatal("PopLocal on empty queue should return nil")
	}
}

func TestStealIsFIFO(t *testing.T) {
	q := New(0)
	for i := uint64(1); i <= 3; i++ {
		if err := q.PushLocal(wrap(i, true)); err != nil {
			t.Fatalf("PushLocal %d: %v", i, err)
		}
	}

	for want := uint64(1); want <= 3; want++ {
		got := q.Steal()
		if got == nil || got.ID.Seq != want {
			t.Fatalf("Steal: want seq %d, got %v", want, got)
		}
	}
	if q.Steal() != nil {
		t.Fatal("Steal on empty queue should return nil")
	}
}

func TestStealSkipsPinnedWork(t *testing.T) {
	q := New(0)
	if err := q.PushLocal(wrap(1, false)); err != nil {
		t.Fatalf("PushLocal: %v", err)
	}
	if err := q.PushLocal(wrap(2, true)); err != nil {
		t.Fatalf("PushLocal: %v", err)
	}

	got := q.Steal()
	if got == nil || got.ID.Seq != 2 {
		t.Fatalf("Steal should skip pinned work, got %v", got)
	}
	if q.Steal() != nil {
		t.Fatal("pinned activity must not be stolen")
	}

	// The owner still sees the pinned activity.
	if got := q.PopLocal(); got == nil || got.ID.Seq != 1 {
		t.Fatalf("PopLocal should return pinned activity, got %v", got)
	}
}

func TestBoundedCapacity(t *testing.T) {
	q := New(2)
	if err := q.PushLocal(wrap(1, true)); err != nil {
		t.Fatalf("PushLocal: %v", err)
	}
	if err := q.PushLocal(wrap(2, true)); err != nil {
		t.Fatalf("PushLocal: %v", err)
	}
	if err := q.PushLocal(wrap(3, true)); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	q.PopLocal()
	if err := q.PushLocal(wrap(3, true)); err != nil {
		t.Fatalf("PushLocal after pop: %v", err)
	}
}

// TestNoLossNoDuplication drives one owner and several stealers over the
// same queue with randomized interleavings: every pushed activity must be
// returned by exactly one of PopLocal or Steal, never both, never zero
// times.
func TestNoLossNoDuplication(t *testing.T) {
	const (
		total    = 5000
		stealers = 4
	)

	q := New(0)

	var (
		seen      sync.Map
		returned  atomic.Int64
		duplicate atomic.Int64
	)
	record := func(w *activity.Wrapper) {
		if _, loaded := seen.LoadOrStore(w.ID.Seq, true); loaded {
			duplicate.Add(1)
		}
		returned.Add(1)
	}

	done := make(chan struct{})

	var wg sync.WaitGroup
	for s := 0; s < stealers; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if w := q.Steal(); w != nil {
					record(w)
					continue
				}
				select {
				case <-done:
					// One final sweep so nothing pushed late is stranded.
					for w := q.Steal(); w != nil; w = q.Steal() {
						record(w)
					}
					return
				default:
				}
			}
		}()
	}

	// Owner: interleave pushes with occasional pops.
	rnd := rand.New(rand.NewSource(42))
	for i := uint64(0); i < total; i++ {
		if err := q.PushLocal(wrap(i, true)); err != nil {
			t.Fatalf("PushLocal: %v", err)
		}
		if rnd.Intn(3) == 0 {
			if w := q.PopLocal(); w != nil {
				record(w)
			}
		}
	}
	// Owner drains its end.
	for w := q.PopLocal(); w != nil; w = q.PopLocal() {
		record(w)
	}
	close(done)
	wg.Wait()

	// Anything left after both sides stopped is a loss.
	for w := q.PopLocal(); w != nil; w = q.PopLocal() {
		record(w)
	}

	if got := returned.Load(); got != total {
		t.Fatalf("returned %d activities, want %d", got, total)
	}
	if dups := duplicate.Load(); dups != 0 {
		t.Fatalf("%d activities returned more than once", dups)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drain: %d", q.Len())
	}
}
