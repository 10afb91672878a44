package constellation

import (
	"context"

	"github.com/petrijr/constellation/pkg/api"
)

// SingleEventCollector is an activity that waits for exactly one event and
// hands it to ordinary Go code. Submit one, give its identifier to whatever
// produces the result, and Wait from outside the runtime:
//
//	col := constellation.NewSingleEventCollector()
//	id, _ := c.Submit(col, constellation.CollectorOptions("result"))
//	// ... submit work that sends an event to id ...
//	e, err := col.Wait(ctx)
//
// The collector holds a channel, so it cannot cross node boundaries; submit
// it with CollectorOptions (or NotStealable set) to pin it to its node.
type SingleEventCollector struct {
	ch chan api.Event
}

var _ api.Activity = (*SingleEventCollector)(nil)

// NewSingleEventCollector returns a collector ready to submit.
func NewSingleEventCollector() *SingleEventCollector {
	return &SingleEventCollector{ch: make(chan api.Event, 1)}
}

// CollectorOptions returns the submission options a collector should be
// submitted with: pinned and expecting events.
func CollectorOptions(label string) SubmitOptions {
	return SubmitOptions{Label: label, NotStealable: true, ExpectsEvents: true}
}

func (c *SingleEventCollector) Initialize(api.Constellation, api.ActivityID) (api.Decision, error) {
	return api.Suspend, nil
}

func (c *SingleEventCollector) Process(_ api.Constellation, _ api.ActivityID, e *api.Event) (api.Decision, error) {
	c.ch <- *e
	return api.Finish, nil
}

func (c *SingleEventCollector) Cleanup(api.Constellation, api.ActivityID) {}

// Wait blocks until the collector's event arrives or ctx expires.
func (c *SingleEventCollector) Wait(ctx context.Context) (api.Event, error) {
	select {
	case e := <-c.ch:
		return e, nil
	case <-ctx.Done():
		return api.Event{}, ctx.Err()
	}
}
