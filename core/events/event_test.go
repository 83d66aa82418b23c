package events

import (
	"testing"

	"fixedcredit/core/types"
)

type sample struct{ evt *types.Event }

func (s sample) EventType() string   { return s.evt.Type }
func (s sample) Event() *types.Event { return s.evt }

type counter struct{ n int }

func (c *counter) Emit(Event) { c.n++ }

func TestFanoutDeliversToEveryEmitter(t *testing.T) {
	a, b := &counter{}, &counter{}
	Fanout{a, nil, b, NoopEmitter{}}.Emit(sample{evt: &types.Event{Type: "x"}})
	if a.n != 1 || b.n != 1 {
		t.Fatalf("expected one delivery each, got %d and %d", a.n, b.n)
	}
}

func TestAttributesCopies(t *testing.T) {
	evt := sample{evt: &types.Event{Type: "x", Attributes: map[string]string{"id": "1"}}}
	attrs := Attributes(evt)
	attrs["id"] = "2"
	if evt.evt.Attributes["id"] != "1" {
		t.Fatalf("attributes not copied")
	}
	if Attributes(NoopEvent{}) != nil {
		t.Fatalf("expected nil attributes for plain events")
	}
}

type NoopEvent struct{}

func (NoopEvent) EventType() string { return "noop" }
