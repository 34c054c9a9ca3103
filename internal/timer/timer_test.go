package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSectionTimerFiresOnce(t *testing.T) {
	start := time.Now()
	st := NewSectionTimer(60 * time.Second)
	st.Arm(start)

	if st.Tick(start.Add(59 * time.Second)) {
		t.Fatalf("fired early")
	}
	if got := st.Remaining(start.Add(59*time.Second + 500*time.Millisecond)); got != time.Second {
		t.Fatalf("expected 1s remaining, got %v", got)
	}
	if !st.Tick(start.Add(60 * time.Second)) {
		t.Fatalf("expected expiry at deadline")
	}
	if st.Tick(start.Add(61 * time.Second)) {
		t.Fatalf("fired twice")
	}
	if st.Armed() {
		t.Fatalf("expected timer to disarm after firing")
	}
}

func TestSectionTimerRearmResetsToFull(t *testing.T) {
	start := time.Now()
	st := NewSectionTimer(30 * time.Second)
	st.Arm(start)

	later := start.Add(20 * time.Second)
	if got := st.Remaining(later); got != 10*time.Second {
		t.Fatalf("expected 10s, got %v", got)
	}
	st.Arm(later)
	if got := st.Remaining(later); got != 30*time.Second {
		t.Fatalf("expected full 30s after re-arm, got %v", got)
	}
}

func TestSectionTimerDisabled(t *testing.T) {
	st := NewSectionTimer(0)
	st.Arm(time.Now())
	if st.Armed() || st.Tick(time.Now().Add(time.Hour)) {
		t.Fatalf("disabled timer must never arm or fire")
	}

	var nilTimer *SectionTimer
	if nilTimer.Tick(time.Now()) || nilTimer.Remaining(time.Now()) != 0 {
		t.Fatalf("nil timer must be inert")
	}
}

func TestAccessWindowFiresOnce(t *testing.T) {
	now := time.Now()
	w := NewAccessWindow(now.Add(2*time.Minute), now)

	if w.Tick(now.Add(time.Minute)) {
		t.Fatalf("fired early")
	}
	if got := w.Remaining(now.Add(time.Minute)); got != time.Minute {
		t.Fatalf("expected 1m remaining, got %v", got)
	}
	if !w.Tick(now.Add(2 * time.Minute)) {
		t.Fatalf("expected expiry")
	}
	if w.Tick(now.Add(3 * time.Minute)) {
		t.Fatalf("fired twice")
	}
	if !w.Expired(now.Add(3 * time.Minute)) {
		t.Fatalf("expected expired")
	}
}

func TestAccessWindowAlreadyExpiredLease(t *testing.T) {
	now := time.Now()
	w := NewAccessWindow(now.Add(-time.Second), now)
	if w.Remaining(now) != 0 {
		t.Fatalf("expected zero remaining")
	}
	if !w.Tick(now) {
		t.Fatalf("expected immediate expiry")
	}
}

func TestRunnerTicksAndStops(t *testing.T) {
	var ticks atomic.Int32
	var r *Runner
	r = NewRunner(5*time.Millisecond, func(time.Time) {
		if ticks.Add(1) == 3 {
			r.Stop() // stopping from inside the callback must not deadlock
		}
	})
	r.Start()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}
	r.Stop()
}
