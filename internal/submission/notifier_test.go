package submission

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDelayNotifierFiresOnce(t *testing.T) {
	n := NewDelayNotifier()
	var fired atomic.Int32
	n.Arm(10*time.Millisecond, func() { fired.Add(1) })

	waitFor(t, func() bool { return fired.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired = %d, want 1", got)
	}
	if n.Armed() {
		t.Fatalf("notifier still armed after firing")
	}
}

func TestDelayNotifierCancel(t *testing.T) {
	n := NewDelayNotifier()
	var fired atomic.Int32
	n.Arm(20*time.Millisecond, func() { fired.Add(1) })
	if !n.Armed() {
		t.Fatalf("expected armed notifier")
	}
	n.Cancel()
	n.Cancel()
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired = %d after cancel, want 0", got)
	}
	if n.Armed() {
		t.Fatalf("notifier armed after cancel")
	}
}

func TestDelayNotifierCancelWhenUnarmed(t *testing.T) {
	n := NewDelayNotifier()
	n.Cancel()
	if n.Armed() {
		t.Fatalf("unarmed notifier reports armed")
	}
}

func TestDelayNotifierRearmReplacesTimer(t *testing.T) {
	n := NewDelayNotifier()
	var first, second atomic.Int32
	n.Arm(20*time.Millisecond, func() { first.Add(1) })
	n.Arm(40*time.Millisecond, func() { second.Add(1) })

	waitFor(t, func() bool { return second.Load() == 1 })
	if got := first.Load(); got != 0 {
		t.Fatalf("first callback fired %d times after re-arm", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
