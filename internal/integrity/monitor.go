// Package integrity watches focus, visibility, fullscreen and keyboard
// signals during a session and escalates them into warnings, soft blocks
// and, ultimately, forced termination.
package integrity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ReasonViolation is the termination reason reported for every forced end.
const ReasonViolation = "integrity_violation"

// EventKind enumerates what the monitor tells its owner.
type EventKind string

const (
	EventInfraction EventKind = "infraction"
	EventWarning    EventKind = "warning"
	EventSoftBlock  EventKind = "soft_block"
	EventUnblock    EventKind = "unblock"
	EventTerminate  EventKind = "terminate"
)

// Event is emitted by the monitor. Only EventTerminate changes session state.
type Event struct {
	Kind        EventKind     `json:"kind"`
	Signal      Signal        `json:"signal"`
	Infractions int           `json:"infractions"`
	Message     string        `json:"message,omitempty"`
	Grace       time.Duration `json:"grace,omitempty"`
}

// Confirmer asks the participant, synchronously, whether the focus loss was
// intentional. Returning false (or an error) terminates the attempt.
type Confirmer interface {
	ConfirmStay(ctx context.Context) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context) (bool, error)

// ConfirmStay implements Confirmer.
func (f ConfirmerFunc) ConfirmStay(ctx context.Context) (bool, error) { return f(ctx) }

// Monitor applies a Policy to incoming signals. Listeners are attached by
// Start and detached by Stop; both are idempotent.
type Monitor struct {
	policy    Policy
	confirmer Confirmer
	emit      func(Event)
	log       zerolog.Logger

	mu          sync.Mutex
	started     bool
	stopped     bool
	terminated  bool
	confirming  bool
	infractions int
	hides       int
	blocked     bool
	grace       *time.Timer
	graceGen    int
}

// NewMonitor creates a monitor. emit receives every event outside the
// monitor's lock, so it may call back into Stop.
func NewMonitor(policy Policy, confirmer Confirmer, emit func(Event), log zerolog.Logger) *Monitor {
	return &Monitor{
		policy:    policy,
		confirmer: confirmer,
		emit:      emit,
		log:       log.With().Str("component", "integrity_monitor").Logger(),
	}
}

// Start attaches the monitor. Calls after the first, or after Stop, do nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.log.Debug().Msg("Monitor attached")
}

// Stop detaches the monitor and cancels any pending grace timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	m.cancelGraceLocked()
	m.log.Debug().Int("infractions", m.infractions).Msg("Monitor detached")
}

// Active reports whether signals are currently observed.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

// Infractions returns the number of infractions seen so far.
func (m *Monitor) Infractions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infractions
}

func (m *Monitor) activeLocked() bool {
	return m.started && !m.stopped && !m.terminated
}

// Handle processes one signal. Blur may block while the participant is asked
// to confirm; ctx bounds that wait.
func (m *Monitor) Handle(ctx context.Context, sig Signal) {
	m.mu.Lock()
	if !m.activeLocked() || !sig.Kind.Valid() {
		m.mu.Unlock()
		return
	}

	var out []Event
	if sig.Kind.infraction() {
		m.infractions++
		out = append(out, Event{Kind: EventInfraction, Signal: sig, Infractions: m.infractions})
	}

	askConfirm := false
	switch sig.Kind {
	case SignalVisibilityHidden:
		m.hides++
		if m.hides > m.policy.HideWarnings {
			out = append(out, m.terminateLocked(sig, "tab switching limit reached"))
		} else {
			out = append(out, Event{
				Kind:        EventWarning,
				Signal:      sig,
				Infractions: m.infractions,
				Message:     fmt.Sprintf("warning %d/%d: tab switching detected", m.hides, m.policy.HideWarnings+1),
			})
		}

	case SignalRestrictedKey:
		out = append(out, m.softBlockLocked(sig, m.policy.KeyComboGrace))

	case SignalPointerLeave:
		if m.policy.PointerLeaveGrace > 0 && !m.blocked {
			out = append(out, m.softBlockLocked(sig, m.policy.PointerLeaveGrace))
		}

	case SignalBlur:
		switch {
		case m.blocked || m.confirming:
			// already handling a block; focus return clears it
		case m.policy.ConfirmBlur && m.confirmer != nil:
			m.confirming = true
			askConfirm = true
		default:
			out = append(out, Event{Kind: EventWarning, Signal: sig, Infractions: m.infractions, Message: "focus lost"})
		}

	case SignalFullscreenExit:
		if m.policy.FullscreenExitTerminates {
			out = append(out, m.terminateLocked(sig, "fullscreen exited"))
		} else {
			out = append(out, Event{Kind: EventWarning, Signal: sig, Infractions: m.infractions, Message: "fullscreen exited"})
		}

	case SignalFocus, SignalPointerEnter:
		if m.blocked {
			m.cancelGraceLocked()
			m.blocked = false
			out = append(out, Event{Kind: EventUnblock, Signal: sig, Infractions: m.infractions})
		}
	}
	m.mu.Unlock()

	m.dispatch(out)
	if askConfirm {
		m.confirmBlur(ctx, sig)
	}
}

func (m *Monitor) confirmBlur(ctx context.Context, sig Signal) {
	stay, err := m.confirmer.ConfirmStay(ctx)

	m.mu.Lock()
	m.confirming = false
	if !m.activeLocked() {
		m.mu.Unlock()
		return
	}
	var out []Event
	if err != nil || !stay {
		if err != nil {
			m.log.Warn().Err(err).Msg("Blur confirmation failed")
		}
		out = append(out, m.terminateLocked(sig, "focus loss not confirmed"))
	}
	m.mu.Unlock()
	m.dispatch(out)
}

func (m *Monitor) softBlockLocked(sig Signal, grace time.Duration) Event {
	m.blocked = true
	m.cancelGraceLocked()
	if grace > 0 {
		m.graceGen++
		gen := m.graceGen
		m.grace = time.AfterFunc(grace, func() { m.graceExpired(sig, gen) })
	}
	return Event{Kind: EventSoftBlock, Signal: sig, Infractions: m.infractions, Grace: grace, Message: "screen blocked"}
}

func (m *Monitor) graceExpired(sig Signal, gen int) {
	m.mu.Lock()
	if !m.activeLocked() || !m.blocked || gen != m.graceGen {
		m.mu.Unlock()
		return
	}
	ev := m.terminateLocked(sig, "focus not regained within grace period")
	m.mu.Unlock()
	m.dispatch([]Event{ev})
}

func (m *Monitor) terminateLocked(sig Signal, msg string) Event {
	m.terminated = true
	m.cancelGraceLocked()
	m.log.Warn().
		Str("signal", string(sig.Kind)).
		Int("infractions", m.infractions).
		Msg("Integrity violation, terminating")
	return Event{Kind: EventTerminate, Signal: sig, Infractions: m.infractions, Message: msg}
}

func (m *Monitor) cancelGraceLocked() {
	if m.grace != nil {
		m.grace.Stop()
		m.grace = nil
	}
}

func (m *Monitor) dispatch(events []Event) {
	if m.emit == nil {
		return
	}
	for _, ev := range events {
		m.emit(ev)
	}
}
