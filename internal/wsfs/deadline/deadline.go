// Package deadline implements a one-shot, cancellable timer used by the
// JSON-RPC proxy to enforce per-call timeouts.
//
// It follows the same shape as internal/lifecycle.Instance's idleTimer /
// terminateTimer fields: a mutex-guarded *time.Timer that is stopped and
// replaced rather than left to fire after it no longer applies.
package deadline

import (
	"sync"
	"time"
)

// Timer is a single-fire, cancellable, re-armable timer.
type Timer struct {
	mu    sync.Mutex
	t     *time.Timer
	armed bool
}

// New creates an unarmed Timer.
func New() *Timer {
	return &Timer{}
}

// Arm schedules fn to run after d, cancelling any previously scheduled fire.
func (dl *Timer) Arm(d time.Duration, fn func()) {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.t != nil {
		dl.t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		dl.mu.Lock()
		if dl.t == t {
			dl.armed = false
		}
		dl.mu.Unlock()
		fn()
	})
	dl.t = t
	dl.armed = true
}

// Cancel stops the timer. It is safe to call on an unarmed or already-fired
// Timer.
func (dl *Timer) Cancel() {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.t != nil {
		dl.t.Stop()
	}
	dl.armed = false
}

// Armed reports whether the timer currently has a pending fire scheduled.
func (dl *Timer) Armed() bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.armed
}
