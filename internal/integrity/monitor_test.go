package integrity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newMonitor(t *testing.T, p Policy, c Confirmer) (*Monitor, *recorder) {
	t.Helper()
	rec := &recorder{}
	m := NewMonitor(p, c, rec.emit, zerolog.Nop())
	m.Start()
	t.Cleanup(m.Stop)
	return m, rec
}

func TestSecondHideTerminatesExactlyOnce(t *testing.T) {
	m, rec := newMonitor(t, DefaultPolicy(), nil)
	ctx := context.Background()

	m.Handle(ctx, Signal{Kind: SignalVisibilityHidden})
	if got := rec.count(EventWarning); got != 1 {
		t.Fatalf("expected 1 warning after first hide, got %d", got)
	}
	if got := rec.count(EventTerminate); got != 0 {
		t.Fatalf("first hide must not terminate")
	}

	m.Handle(ctx, Signal{Kind: SignalVisibilityVisible})
	m.Handle(ctx, Signal{Kind: SignalVisibilityHidden})
	m.Handle(ctx, Signal{Kind: SignalVisibilityHidden})

	if got := rec.count(EventTerminate); got != 1 {
		t.Fatalf("expected exactly 1 terminate, got %d", got)
	}
	if m.Active() {
		t.Fatal("monitor should be inactive after termination")
	}
}

func TestSignalsIgnoredBeforeStartAndAfterStop(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(DefaultPolicy(), nil, rec.emit, zerolog.Nop())
	m.Handle(context.Background(), Signal{Kind: SignalVisibilityHidden})

	m.Start()
	m.Stop()
	m.Start()
	m.Handle(context.Background(), Signal{Kind: SignalVisibilityHidden})

	if len(rec.events) != 0 {
		t.Fatalf("expected no events, got %v", rec.events)
	}
}

func TestRestrictedKeyBlocksThenFocusUnblocks(t *testing.T) {
	p := DefaultPolicy()
	p.KeyComboGrace = time.Hour
	m, rec := newMonitor(t, p, nil)

	m.Handle(context.Background(), Signal{Kind: SignalRestrictedKey, Key: "PrintScreen"})
	if got := rec.count(EventSoftBlock); got != 1 {
		t.Fatalf("expected soft block, got %d", got)
	}

	m.Handle(context.Background(), Signal{Kind: SignalFocus})
	if got := rec.count(EventUnblock); got != 1 {
		t.Fatalf("expected unblock, got %d", got)
	}
	if got := rec.count(EventTerminate); got != 0 {
		t.Fatal("focus within grace must not terminate")
	}
}

func TestGraceExpiryTerminates(t *testing.T) {
	p := DefaultPolicy()
	p.PointerLeaveGrace = 10 * time.Millisecond
	m, rec := newMonitor(t, p, nil)

	m.Handle(context.Background(), Signal{Kind: SignalPointerLeave})

	deadline := time.Now().Add(2 * time.Second)
	for rec.count(EventTerminate) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.count(EventTerminate); got != 1 {
		t.Fatalf("expected terminate after grace, got %d", got)
	}
}

func TestBlurConfirmation(t *testing.T) {
	tests := []struct {
		name      string
		stay      bool
		err       error
		terminate int
	}{
		{"participant stays", true, nil, 0},
		{"participant leaves", false, nil, 1},
		{"confirmation fails", false, errors.New("connection closed"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asked := 0
			c := ConfirmerFunc(func(ctx context.Context) (bool, error) {
				asked++
				return tt.stay, tt.err
			})
			m, rec := newMonitor(t, DefaultPolicy(), c)

			m.Handle(context.Background(), Signal{Kind: SignalBlur})

			if asked != 1 {
				t.Fatalf("expected one confirmation prompt, got %d", asked)
			}
			if got := rec.count(EventTerminate); got != tt.terminate {
				t.Fatalf("expected %d terminate, got %d", tt.terminate, got)
			}
		})
	}
}

func TestStopDuringConfirmationSuppressesTerminate(t *testing.T) {
	var m *Monitor
	c := ConfirmerFunc(func(ctx context.Context) (bool, error) {
		m.Stop()
		return false, nil
	})
	m, rec := newMonitor(t, DefaultPolicy(), c)

	m.Handle(context.Background(), Signal{Kind: SignalBlur})

	if got := rec.count(EventTerminate); got != 0 {
		t.Fatalf("stopped monitor must not terminate, got %d", got)
	}
}

func TestFullscreenExitPolicy(t *testing.T) {
	p := DefaultPolicy()
	m, rec := newMonitor(t, p, nil)
	m.Handle(context.Background(), Signal{Kind: SignalFullscreenExit})
	if rec.count(EventTerminate) != 0 || rec.count(EventWarning) != 1 {
		t.Fatalf("default policy should only warn on fullscreen exit: %v", rec.events)
	}

	p.FullscreenExitTerminates = true
	m2, rec2 := newMonitor(t, p, nil)
	m2.Handle(context.Background(), Signal{Kind: SignalFullscreenExit})
	if rec2.count(EventTerminate) != 1 {
		t.Fatal("strict policy should terminate on fullscreen exit")
	}
}

func TestInfractionsCounted(t *testing.T) {
	p := DefaultPolicy()
	p.HideWarnings = 5
	p.KeyComboGrace = time.Hour
	m, _ := newMonitor(t, p, nil)
	ctx := context.Background()

	m.Handle(ctx, Signal{Kind: SignalVisibilityHidden})
	m.Handle(ctx, Signal{Kind: SignalRestrictedKey, Key: "Ctrl+P"})
	m.Handle(ctx, Signal{Kind: SignalFocus})
	m.Handle(ctx, Signal{Kind: "bogus"})

	if got := m.Infractions(); got != 2 {
		t.Fatalf("expected 2 infractions, got %d", got)
	}
}

func TestRestrictedCombo(t *testing.T) {
	tests := []struct {
		key               string
		ctrl, meta, shift bool
		want              string
		ok                bool
	}{
		{"PrintScreen", false, false, false, "PrintScreen", true},
		{"Snapshot", false, false, false, "Snapshot", true},
		{"p", true, false, false, "Ctrl+P", true},
		{"P", true, false, false, "Ctrl+P", true},
		{"s", false, true, true, "Meta+Shift+S", true},
		{"4", false, true, true, "Meta+Shift+4", true},
		{"s", false, true, false, "", false},
		{"p", false, false, false, "", false},
	}
	for _, tt := range tests {
		got, ok := RestrictedCombo(tt.key, tt.ctrl, tt.meta, tt.shift)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RestrictedCombo(%q, %v, %v, %v) = %q, %v; want %q, %v",
				tt.key, tt.ctrl, tt.meta, tt.shift, got, ok, tt.want, tt.ok)
		}
	}
}
