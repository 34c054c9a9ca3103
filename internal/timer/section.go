// Package timer implements the per-section countdown and the absolute
// access-window deadline. Both are driven by explicit ticks so the session
// controller decides when time advances.
package timer

import (
	"sync"
	"time"
)

// SectionTimer counts down a fixed duration from the moment a section is
// entered. Re-entering a section re-arms it to the full duration; elapsed
// time from earlier visits is not preserved.
type SectionTimer struct {
	mu       sync.Mutex
	duration time.Duration
	deadline time.Time
	armed    bool
}

// NewSectionTimer returns a disarmed timer. A non-positive duration yields a
// timer that never arms.
func NewSectionTimer(d time.Duration) *SectionTimer {
	return &SectionTimer{duration: d}
}

// Enabled reports whether the timer has a usable duration.
func (t *SectionTimer) Enabled() bool { return t != nil && t.duration > 0 }

// Duration returns the configured section duration.
func (t *SectionTimer) Duration() time.Duration { return t.duration }

// Arm starts a fresh countdown at now.
func (t *SectionTimer) Arm(now time.Time) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	t.deadline = now.Add(t.duration)
	t.armed = true
	t.mu.Unlock()
}

// Disarm stops the countdown without raising expiry.
func (t *SectionTimer) Disarm() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.armed = false
	t.mu.Unlock()
}

// Armed reports whether a countdown is running.
func (t *SectionTimer) Armed() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Remaining returns the time left, rounded up to whole seconds, or zero when
// disarmed.
func (t *SectionTimer) Remaining(now time.Time) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return 0
	}
	return ceilSecond(t.deadline.Sub(now))
}

// Tick reports expiry. It returns true exactly once per Arm: the timer
// disarms itself when it fires.
func (t *SectionTimer) Tick(now time.Time) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed || now.Before(t.deadline) {
		return false
	}
	t.armed = false
	return true
}

func ceilSecond(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
