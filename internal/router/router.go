// Package router moves activities and events between nodes. Routing is a
// pure function of the identifier: the node that created an activity is its
// home, and events for it are sent there. Homes keep forwarding state for
// activities that migrated; the router only carries, the thread handler owns
// that table.
package router

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petrijr/constellation/internal/activity"
	"github.com/petrijr/constellation/internal/logging"
	"github.com/petrijr/constellation/internal/transport"
	"github.com/petrijr/constellation/pkg/api"
)

// Local is the per-node handler surface the router injects inbound traffic
// into. Calls arrive on the transport's receive goroutine.
type Local interface {
	// InjectActivity accepts an activity that arrived from another node and
	// schedules it locally.
	InjectActivity(w *activity.Wrapper)

	// InjectEvent accepts an event whose target routes to this node.
	InjectEvent(e *api.Event) error

	// StealForRemote releases one stealable activity to the requesting node,
	// or nil if every local queue is empty. The handler updates its ownership
	// bookkeeping before returning; the router ships the result.
	StealForRemote(to int32) *activity.Wrapper
}

// Router is one node's connection to the rest of the run.
type Router struct {
	self    int32
	tr      transport.Transport
	local   Local
	retries int
	log     zerolog.Logger
}

// New builds the router for node self on the given transport. retries bounds
// resend attempts per payload.
func New(self int32, tr transport.Transport, retries int) *Router {
	if retries < 1 {
		retries = 1
	}
	return &Router{
		self:    self,
		tr:      tr,
		retries: retries,
		log:     logging.Component("router").With().Int32("node", self).Logger(),
	}
}

// Self returns this node's index.
func (r *Router) Self() int32 { return r.self }

// Bind attaches the local handler and starts receiving. Must run before any
// send.
func (r *Router) Bind(local Local) error {
	r.local = local
	return r.tr.Start(r.receive)
}

// Route returns the node an identifier routes to. Deterministic and shared
// by every node: the creating node is always the routing destination.
func (r *Router) Route(id api.ActivityID) int32 { return id.Node }

// SendActivity ships a wrapper to another node. On a nil return the activity
// now belongs to the destination; on error the caller still owns it and may
// reschedule locally.
func (r *Router) SendActivity(to int32, w *activity.Wrapper) error {
	payload, err := encodeActivity(w)
	if err != nil {
		return api.NewError(api.KindTransport, "send-activity", err)
	}
	if err := r.send(to, payload); err != nil {
		return api.NewError(api.KindTransport, "send-activity", err)
	}
	r.log.Debug().Stringer("activity", w.ID).Int32("to", to).Msg("activity shipped")
	return nil
}

// SendEvent ships an event to the node its target routes to.
func (r *Router) SendEvent(to int32, e *api.Event) error {
	payload, err := encodeEvent(e)
	if err != nil {
		return api.NewError(api.KindTransport, "send-event", err)
	}
	if err := r.send(to, payload); err != nil {
		return api.NewError(api.KindTransport, "send-event", err)
	}
	return nil
}

// RequestSteal asks a remote node for one stealable activity. The response,
// if any, arrives later as an inbound activity frame; the requester does not
// block.
func (r *Router) RequestSteal(to int32) error {
	payload, err := encodeStealRequest()
	if err != nil {
		return api.NewError(api.KindTransport, "request-steal", err)
	}
	if err := r.send(to, payload); err != nil {
		return api.NewError(api.KindTransport, "request-steal", err)
	}
	return nil
}

// send retries a transport send up to the configured bound before giving up.
func (r *Router) send(to int32, payload []byte) error {
	var err error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
		}
		if err = r.tr.Send(to, payload); err == nil {
			return nil
		}
	}
	return fmt.Errorf("to node %d after %d attempts: %w", to, r.retries, err)
}

func (r *Router) receive(from int32, payload []byte) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		r.log.Error().Err(err).Int32("from", from).Msg("dropping undecodable frame")
		return
	}

	switch env.Kind {
	case frameActivity:
		w, err := decodeActivity(env.Activity)
		if err != nil {
			r.log.Error().Err(err).Int32("from", from).Msg("dropping undecodable activity")
			return
		}
		r.local.InjectActivity(w)

	case frameEvent:
		e := &api.Event{Target: env.Event.Target, Source: env.Event.Source, Payload: env.Event.Payload}
		if err := r.local.InjectEvent(e); err != nil {
			r.log.Warn().Err(err).Stringer("target", e.Target).Msg("inbound event undeliverable")
		}

	case frameStealRequest:
		w := r.local.StealForRemote(from)
		if w == nil {
			return
		}
		if err := r.SendActivity(from, w); err != nil {
			// The activity must not be lost; put it back locally.
			r.log.Warn().Err(err).Stringer("activity", w.ID).Msg("steal response failed, rescheduling locally")
			r.local.InjectActivity(w)
		}

	default:
		r.log.Error().Uint8("kind", env.Kind).Int32("from", from).Msg("dropping frame of unknown kind")
	}
}

// Close tears down the underlying transport.
func (r *Router) Close() error { return r.tr.Close() }
