package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestArm_FiresOnceAndUnregisters(t *testing.T) {
	ts := NewTimers()
	defer ts.Stop()

	var fired int32
	ts.Arm("k", 5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, "timer never fired")
	waitFor(t, func() bool { return !ts.Armed("k") }, "fired timer should unregister")
}

func TestArm_ReplacesPreviousTimer(t *testing.T) {
	ts := NewTimers()
	defer ts.Stop()

	var first, second int32
	ts.Arm("k", 20*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
	ts.Arm("k", 20*time.Millisecond, func() { atomic.AddInt32(&second, 1) })

	waitFor(t, func() bool { return atomic.LoadInt32(&second) == 1 }, "replacement timer never fired")
	if atomic.LoadInt32(&first) != 0 {
		t.Fatalf("replaced timer must not fire")
	}
}

func TestCancel(t *testing.T) {
	ts := NewTimers()
	defer ts.Stop()

	var fired int32
	ts.Arm("k", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	ts.Cancel("k")

	if ts.Armed("k") {
		t.Fatalf("canceled key should not be armed")
	}
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("canceled timer must not fire")
	}

	// Canceling an absent key is a no-op.
	ts.Cancel("missing")
}

func TestStop_CancelsEverything(t *testing.T) {
	ts := NewTimers()

	var fired int32
	ts.Arm("a", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	ts.Arm("b", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	ts.Stop()

	if ts.Armed("a") || ts.Armed("b") {
		t.Fatalf("stop should clear every key")
	}
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("stopped timers must not fire, got %d", fired)
	}
}

func TestIndependentKeys(t *testing.T) {
	ts := NewTimers()
	defer ts.Stop()

	var a, b int32
	ts.Arm("a", 5*time.Millisecond, func() { atomic.AddInt32(&a, 1) })
	ts.Arm("b", 5*time.Millisecond, func() { atomic.AddInt32(&b, 1) })
	ts.Cancel("a")

	waitFor(t, func() bool { return atomic.LoadInt32(&b) == 1 }, "unrelated key should still fire")
	if atomic.LoadInt32(&a) != 0 {
		t.Fatalf("canceled key fired")
	}
}
