package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/constellation/internal/journal"
	"github.com/petrijr/constellation/pkg/api"
)

// funcActivity builds test activities out of plain functions.
type funcActivity struct {
	init    func(c api.Constellation, id api.ActivityID) (api.Decision, error)
	process func(c api.Constellation, id api.ActivityID, e *api.Event) (api.Decision, error)
	cleanup func(c api.Constellation, id api.ActivityID)
}

func (a *funcActivity) Initialize(c api.Constellation, id api.ActivityID) (api.Decision, error) {
	if a.init == nil {
		return api.Finish, nil
	}
	return a.init(c, id)
}

func (a *funcActivity) Process(c api.Constellation, id api.ActivityID, e *api.Event) (api.Decision, error) {
	if a.process == nil {
		return api.Finish, nil
	}
	return a.process(c, id, e)
}

func (a *funcActivity) Cleanup(c api.Constellation, id api.ActivityID) {
	if a.cleanup != nil {
		a.cleanup(c, id)
	}
}

func testConfig(executors int) api.Config {
	cfg := api.DefaultConfig()
	cfg.Executors = executors
	cfg.StealBackoffMin = 100 * time.Microsecond
	cfg.StealBackoffMax = time.Millisecond
	return cfg
}

func startHandler(t *testing.T, cfg api.Config, jrnl journal.Journal) *Handler {
	t.Helper()
	h, err := New(cfg, nil, jrnl)
	require.NoError(t, err)
	h.Start()
	t.Cleanup(h.Stop)
	return h
}

func drain(t *testing.T, h *Handler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Done(ctx))
}

func TestSubmitRunsToCompletion(t *testing.T) {
	mem := journal.NewMemory()
	h := startHandler(t, testConfig(2), mem)

	var ran atomic.Bool
	id, err := h.Submit(&funcActivity{
		process: func(api.Constellation, api.ActivityID, *api.Event) (api.Decision, error) {
			ran.Store(true)
			return api.Finish, nil
		},
	}, api.SubmitOptions{Label: "simple"})
	require.NoError(t, err)
	assert.False(t, id.IsZero())

	drain(t, h)
	assert.True(t, ran.Load())
	assert.Equal(t, 1, mem.CountByKind(journal.KindSubmitted))
	assert.Equal(t, 1, mem.CountByKind(journal.KindCompleted))
}

// Suspend on an event, have a second activity deliver it, and check the
// payload comes through the resumption.
func TestSuspendAndResumeOnEvent(t *testing.T) {
	h := startHandler(t, testConfig(2), nil)

	got := make(chan any, 1)
	waiter, err := h.Submit(&funcActivity{
		process: func(c api.Constellation, id api.ActivityID, e *api.Event) (api.Decision, error) {
			got <- e.Payload
			return api.Finish, nil
		},
	}, api.SubmitOptions{Label: "waiter", ExpectsEvents: true})
	require.NoError(t, err)

	_, err = h.Submit(&funcActivity{
		process: func(c api.Constellation, id api.ActivityID, e *api.Event) (api.Decision, error) {
			return api.Finish, c.Send(api.NewEvent("the payload", id, waiter))
		},
	}, api.SubmitOptions{Label: "sender"})
	require.NoError(t, err)

	select {
	case v := <-got:
		assert.Equal(t, "the payload", v)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never resumed")
	}
	drain(t, h)
}

// An event that arrives while its target is still running is buffered and
// cancels the following suspension instead of being lost.
func TestEventBeforeSuspensionIsBuffered(t *testing.T) {
	h := startHandler(t, testConfig(2), nil)

	ready := make(chan api.ActivityID, 1)
	release := make(chan struct{})
	got := make(chan any, 1)

	id, err := h.Submit(&funcActivity{
		process: func(c api.Constellation, id api.ActivityID, e *api.Event) (api.Decision, error) {
			if e == nil {
				ready <- id
				<-release // hold the executor until the event is in
				return api.Suspend, nil
			}
			got <- e.Payload
			return api.Finish, nil
		},
	}, api.SubmitOptions{Label: "racer"})
	require.NoError(t, err)

	<-ready
	require.NoError(t, h.Send(api.NewEvent("early", api.ActivityID{}, id)))
	close(release)

	select {
	case v := <-got:
		assert.Equal(t, "early", v)
	case <-time.After(5 * time.Second):
		t.Fatal("buffered event was lost")
	}
	drain(t, h)
}

func TestSendToUnknownTarget(t *testing.T) {
	h := startHandler(t, testConfig(1), nil)

	err := h.Send(api.NewEvent(nil, api.ActivityID{}, api.ActivityID{Node: 0, Seq: 999}))
	require.Error(t, err)
	assert.True(t, api.IsUnknownTarget(err))
}

func TestSendAfterCompletionIsUnknownTarget(t *testing.T) {
	h := startHandler(t, testConfig(1), nil)

	id, err := h.Submit(&funcActivity{}, api.SubmitOptions{})
	require.NoError(t, err)
	drain(t, h)

	err = h.Send(api.NewEvent(nil, api.ActivityID{}, id))
	assert.True(t, api.IsUnknownTarget(err))
}

func TestShutdownRejectsSubmitAndSend(t *testing.T) {
	h := startHandler(t, testConfig(1), nil)
	h.Stop()

	_, err := h.Submit(&funcActivity{}, api.SubmitOptions{})
	assert.True(t, api.IsShutdown(err))

	err = h.Send(api.NewEvent(nil, api.ActivityID{}, api.ActivityID{Seq: 1}))
	assert.True(t, api.IsShutdown(err))
}

// Scenario: one submitter floods the node, every executor ends up doing a
// share of the work, and nothing is lost or run twice.
func TestWorkSpreadsAcrossExecutors(t *testing.T) {
	const n = 400
	cfg := testConfig(4)
	cfg.Placement = api.PlaceRoundRobin
	h := startHandler(t, cfg, nil)

	var mu sync.Mutex
	seen := make(map[api.ActivityID]int)

	for i := 0; i < n; i++ {
		_, err := h.Submit(&funcActivity{
			process: func(c api.Constellation, id api.ActivityID, e *api.Event) (api.Decision, error) {
				time.Sleep(50 * time.Microsecond)
				mu.Lock()
				seen[id]++
				mu.Unlock()
				return api.Finish, nil
			},
		}, api.SubmitOptions{})
		require.NoError(t, err)
	}

	drain(t, h)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "activity %s ran %d times", id, count)
	}
}

// Pinned activities stay where they were placed even with idle executors
// sweeping for work.
func TestNotStealableActivityCompletes(t *testing.T) {
	h := startHandler(t, testConfig(4), nil)

	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		_, err := h.Submit(&funcActivity{
			process: func(api.Constellation, api.ActivityID, *api.Event) (api.Decision, error) {
				ran.Add(1)
				return api.Finish, nil
			},
		}, api.SubmitOptions{NotStealable: true})
		require.NoError(t, err)
	}

	drain(t, h)
	assert.Equal(t, int32(20), ran.Load())
}

func TestActivityFailureDoesNotStopTheNode(t *testing.T) {
	mem := journal.NewMemory()
	h := startHandler(t, testConfig(2), mem)

	_, err := h.Submit(&funcActivity{
		process: func(api.Constellation, api.ActivityID, *api.Event) (api.Decision, error) {
			panic("user bug")
		},
	}, api.SubmitOptions{Label: "bad"})
	require.NoError(t, err)

	var ran atomic.Bool
	_, err = h.Submit(&funcActivity{
		process: func(api.Constellation, api.ActivityID, *api.Event) (api.Decision, error) {
			ran.Store(true)
			return api.Finish, nil
		},
	}, api.SubmitOptions{Label: "good"})
	require.NoError(t, err)

	drain(t, h)
	assert.True(t, ran.Load())
	assert.Equal(t, 1, mem.CountByKind(journal.KindFailed))
	assert.Equal(t, 1, mem.CountByKind(journal.KindCompleted))
}

func TestBoundedQueuesRedirectThenReject(t *testing.T) {
	cfg := testConfig(2)
	cfg.QueueCapacity = 1
	h, err := New(cfg, nil, nil)
	require.NoError(t, err)
	// Executors stay unstarted so the queues cannot drain.

	// Two queues of capacity one accept two submissions, the first via its
	// preferred queue and the second via redirect or its own slot.
	_, err = h.Submit(&funcActivity{}, api.SubmitOptions{})
	require.NoError(t, err)
	_, err = h.Submit(&funcActivity{}, api.SubmitOptions{})
	require.NoError(t, err)

	_, err = h.Submit(&funcActivity{}, api.SubmitOptions{})
	require.Error(t, err)
	assert.True(t, api.IsQueueContention(err))
}

func TestDoneTimesOutOnSuspendedActivity(t *testing.T) {
	h := startHandler(t, testConfig(1), nil)

	_, err := h.Submit(&funcActivity{}, api.SubmitOptions{ExpectsEvents: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, h.Done(ctx))
}
