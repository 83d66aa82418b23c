package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauses(t *testing.T) {
	if err := Guard(nil, "credit"); err != nil {
		t.Fatalf("nil view should never block: %v", err)
	}
	pauses := NewPauses()
	if err := Guard(pauses, "credit"); err != nil {
		t.Fatalf("unexpected pause: %v", err)
	}
	pauses.Set(" Credit ", true)
	if err := Guard(pauses, "credit"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if got := pauses.List(); len(got) != 1 || got[0] != "credit" {
		t.Fatalf("unexpected pause list %v", got)
	}
	pauses.Set("credit", false)
	if err := Guard(pauses, "credit"); err != nil {
		t.Fatalf("expected resumed, got %v", err)
	}
}
