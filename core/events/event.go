package events

import "fixedcredit/core/types"

// Event is a structured state change emitted by a module.
type Event interface {
	EventType() string
}

// Record is implemented by events that expose their attribute record for
// archiving.
type Record interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (API streams, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers each event to every non-nil emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Attributes returns a copy of the attribute map carried by evt, or nil when
// the event does not expose one.
func Attributes(evt Event) map[string]string {
	rec, ok := evt.(Record)
	if !ok || rec.Event() == nil {
		return nil
	}
	out := make(map[string]string, len(rec.Event().Attributes))
	for k, v := range rec.Event().Attributes {
		out[k] = v
	}
	return out
}
