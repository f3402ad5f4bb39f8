package renderer

import (
	"errors"
	"testing"

	"github.com/abdes/oxygen/engine/core"
)

func TestFrameResourcesDrainInFIFOOrder(t *testing.T) {
	m, err := NewFrameResourceManager(2)
	if err != nil {
		t.Fatalf("NewFrameResourceManager: %v", err)
	}

	var order []string
	record := func(name string) DeferredAction {
		return func() error {
			order = append(order, name)
			return nil
		}
	}

	if err := m.OnBeginFrame(0); err != nil {
		t.Fatalf("OnBeginFrame(0): %v", err)
	}
	m.RegisterDeferredAction(record("a"))
	m.RegisterDeferredAction(record("b"))
	m.RegisterDeferredAction(record("c"))

	// Rotating to the other slot must not run slot 0 actions.
	if err := m.OnBeginFrame(1); err != nil {
		t.Fatalf("OnBeginFrame(1): %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("actions ran on the wrong slot: %v", order)
	}
	if got := m.PendingCount(0); got != 3 {
		t.Fatalf("PendingCount(0) = %d, want 3", got)
	}

	if err := m.OnBeginFrame(0); err != nil {
		t.Fatalf("OnBeginFrame(0) again: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("drained %d actions, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("drain order %v, want %v", order, want)
		}
	}
	if got := m.PendingCount(0); got != 0 {
		t.Fatalf("PendingCount(0) after drain = %d, want 0", got)
	}
}

func TestFrameResourcesActionRegisteredDuringDrainWaitsOneCycle(t *testing.T) {
	m, _ := NewFrameResourceManager(2)

	ran := map[string]int{}
	var nested DeferredAction
	nested = func() error {
		ran["nested"]++
		return nil
	}
	m.OnBeginFrame(0)
	m.RegisterDeferredAction(func() error {
		ran["outer"]++
		// Registered while slot 0 drains: must not run in this drain.
		return m.RegisterDeferredAction(nested)
	})

	m.OnBeginFrame(1)
	m.OnBeginFrame(0)
	if ran["outer"] != 1 {
		t.Fatalf("outer ran %d times, want 1", ran["outer"])
	}
	if ran["nested"] != 0 {
		t.Fatalf("nested ran during the same drain it was registered in")
	}

	m.OnBeginFrame(1)
	m.OnBeginFrame(0)
	if ran["nested"] != 1 {
		t.Fatalf("nested ran %d times after one full cycle, want 1", ran["nested"])
	}
}

func TestFrameResourcesFailingActionDoesNotAbortDrain(t *testing.T) {
	m, _ := NewFrameResourceManager(1)

	var after bool
	m.OnBeginFrame(0)
	m.RegisterDeferredAction(func() error { return errors.New("release failed") })
	m.RegisterDeferredAction(func() error {
		after = true
		return nil
	})

	m.OnBeginFrame(0)
	if !after {
		t.Fatal("action after a failing one did not run")
	}
}

func TestFrameResourcesProcessAllDrainsEverySlot(t *testing.T) {
	m, _ := NewFrameResourceManager(3)

	ran := 0
	count := func() error {
		ran++
		return nil
	}
	for slot := 0; slot < 3; slot++ {
		m.OnBeginFrame(slot)
		m.RegisterDeferredAction(count)
		m.RegisterDeferredAction(count)
	}
	// Entering slots 1 and 2 drained their (then empty) queues, so six
	// actions are still pending across the ring.
	ran = 0
	m.ProcessAllDeferredReleases()
	if ran != 6 {
		t.Fatalf("ProcessAllDeferredReleases ran %d actions, want 6", ran)
	}
}

func TestFrameResourcesShutdownDrainsAndRejects(t *testing.T) {
	m, _ := NewFrameResourceManager(2)

	released := false
	m.OnBeginFrame(0)
	m.RegisterDeferredAction(func() error {
		released = true
		return nil
	})

	m.OnRendererShutdown()
	if !released {
		t.Fatal("shutdown did not drain pending actions")
	}

	err := m.RegisterDeferredAction(func() error { return nil })
	if !errors.Is(err, core.ErrShutdownInProgress) {
		t.Fatalf("RegisterDeferredAction after shutdown = %v, want ErrShutdownInProgress", err)
	}
}

func TestFrameResourcesRejectsBadArguments(t *testing.T) {
	if _, err := NewFrameResourceManager(0); err == nil {
		t.Fatal("expected error for zero slot count")
	}

	m, _ := NewFrameResourceManager(1)
	if err := m.RegisterDeferredAction(nil); err == nil {
		t.Fatal("expected error for nil action")
	}
	if err := m.OnBeginFrame(5); err == nil {
		t.Fatal("expected error for out of range slot")
	}
}
