package timer

import (
	"sync"
	"time"
)

// AccessWindow tracks the absolute deadline of a lease. The deadline comes in
// as wall-clock epoch time (it is persisted across reloads) and is converted
// once to an offset from a monotonic reading, so later wall-clock jumps do not
// move it.
type AccessWindow struct {
	mu       sync.Mutex
	deadline time.Time
	fired    bool
}

// NewAccessWindow builds a window that ends at expiresAt (wall clock), measured
// from now. now should come from time.Now so it carries a monotonic reading.
func NewAccessWindow(expiresAt, now time.Time) *AccessWindow {
	left := expiresAt.Sub(now.Round(0))
	return &AccessWindow{deadline: now.Add(left)}
}

// Remaining returns the time left, rounded up to whole seconds.
func (w *AccessWindow) Remaining(now time.Time) time.Duration {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return ceilSecond(w.deadline.Sub(now))
}

// Tick returns true exactly once, on the first tick at or after the deadline.
func (w *AccessWindow) Tick(now time.Time) bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired || now.Before(w.deadline) {
		return false
	}
	w.fired = true
	return true
}

// Expired reports whether the deadline has passed at now.
func (w *AccessWindow) Expired(now time.Time) bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !now.Before(w.deadline)
}
