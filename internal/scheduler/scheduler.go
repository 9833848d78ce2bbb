// Package scheduler provides cancellable delayed actions keyed by thread
// identity. Arming a key atomically replaces (cancels then sets) any timer
// already held for that key, so a key can never fire twice for one arming
// window.
package scheduler

import (
	"sync"
	"time"
)

// Timers is a set of per-key one-shot timers.
type Timers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimers returns an empty timer set.
func NewTimers() *Timers {
	return &Timers{timers: make(map[string]*time.Timer)}
}

// Arm schedules fn to run after d, replacing any timer already armed for
// key. fn runs on its own goroutine.
func (t *Timers) Arm(key string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[key]; ok {
		old.Stop()
	}
	t.timers[key] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		fn()
	})
}

// Cancel stops and removes the timer for key, if any. Canceling an absent
// key is a no-op.
func (t *Timers) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[key]; ok {
		old.Stop()
		delete(t.timers, key)
	}
}

// Armed reports whether a timer is currently held for key.
func (t *Timers) Armed(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[key]
	return ok
}

// Stop cancels every armed timer. Used at shutdown.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, timer := range t.timers {
		timer.Stop()
		delete(t.timers, k)
	}
}
