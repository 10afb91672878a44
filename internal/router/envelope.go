package router

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/petrijr/constellation/internal/activity"
	"github.com/petrijr/constellation/pkg/api"
)

// Envelope kinds. Exactly one of the payload fields is set per envelope.
const (
	frameActivity     uint8 = 1 // an activity changing nodes
	frameEvent        uint8 = 2 // an event for a remote target
	frameStealRequest uint8 = 3 // an idle remote executor asking for work
)

type envelope struct {
	Kind     uint8         `msgpack:"kind"`
	Activity *wireActivity `msgpack:"activity,omitempty"`
	Event    *wireEvent    `msgpack:"event,omitempty"`
}

// wireActivity is a wrapper flattened for transfer. State holds the
// msgpack-encoded user struct; TypeName resolves it through the registry on
// the receiving side.
type wireActivity struct {
	ID            api.ActivityID `msgpack:"id"`
	Label         string         `msgpack:"label"`
	Stealable     bool           `msgpack:"stealable"`
	ExpectsEvents bool           `msgpack:"expects_events"`
	Initialized   bool           `msgpack:"initialized"`
	TypeName      string         `msgpack:"type"`
	State         []byte         `msgpack:"state"`
}

type wireEvent struct {
	Target  api.ActivityID `msgpack:"target"`
	Source  api.ActivityID `msgpack:"source"`
	Payload any            `msgpack:"payload"`
}

// encodeActivity flattens a wrapper into transferable bytes. It fails if the
// activity's concrete type was never registered.
func encodeActivity(w *activity.Wrapper) ([]byte, error) {
	name, err := nameOf(w.Impl())
	if err != nil {
		return nil, err
	}
	state, err := msgpack.Marshal(w.Impl())
	if err != nil {
		return nil, fmt.Errorf("router: encode %s state: %w", w.ID, err)
	}
	return msgpack.Marshal(envelope{
		Kind: frameActivity,
		Activity: &wireActivity{
			ID:            w.ID,
			Label:         w.Label,
			Stealable:     w.Stealable,
			ExpectsEvents: w.ExpectsEvents,
			Initialized:   w.Initialized(),
			TypeName:      name,
			State:         state,
		},
	})
}

func decodeActivity(wa *wireActivity) (*activity.Wrapper, error) {
	impl, err := newByName(wa.TypeName)
	if err != nil {
		return nil, err
	}
	if err := msgpack.Unmarshal(wa.State, impl); err != nil {
		return nil, fmt.Errorf("router: decode %s state: %w", wa.ID, err)
	}
	return activity.Restore(wa.ID, impl, wa.Label, wa.Stealable, wa.ExpectsEvents, wa.Initialized), nil
}

func encodeEvent(e *api.Event) ([]byte, error) {
	return msgpack.Marshal(envelope{
		Kind:  frameEvent,
		Event: &wireEvent{Target: e.Target, Source: e.Source, Payload: e.Payload},
	})
}

func encodeStealRequest() ([]byte, error) {
	return msgpack.Marshal(envelope{Kind: frameStealRequest})
}

func decodeEnvelope(payload []byte) (*envelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("router: decode envelope: %w", err)
	}
	return &env, nil
}
