package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stemsi/exstem-player/internal/session"
)

// ErrConfirmTimeout is returned when nobody answers a stay confirmation.
var ErrConfirmTimeout = errors.New("stay confirmation timed out")

// Stream fans controller events out to connected WebSocket clients and
// carries the blur confirmation round trip. It is the controller's Notifier
// and Confirmer.
type Stream struct {
	mu   sync.Mutex
	subs map[chan session.Event]struct{}

	confirm        chan bool
	confirmTimeout time.Duration
}

func NewStream(confirmTimeout time.Duration) *Stream {
	return &Stream{
		subs:           make(map[chan session.Event]struct{}),
		confirm:        make(chan bool, 1),
		confirmTimeout: confirmTimeout,
	}
}

// Notify never blocks; a subscriber that falls behind loses events.
func (s *Stream) Notify(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener. The returned func unsubscribes.
func (s *Stream) Subscribe(buffer int) (<-chan session.Event, func()) {
	ch := make(chan session.Event, buffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

// Subscribers returns the number of connected listeners.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// ConfirmStay implements integrity.Confirmer. With no UI connected there is
// nobody to ask, so the participant is given the benefit of the doubt.
func (s *Stream) ConfirmStay(ctx context.Context) (bool, error) {
	if s.Subscribers() == 0 {
		return true, nil
	}

	// discard a stale answer from an earlier prompt
	select {
	case <-s.confirm:
	default:
	}

	s.Notify(session.Event{Type: session.EventConfirmStay, Message: "Leaving the exam window ends your attempt. Stay?"})

	timer := time.NewTimer(s.confirmTimeout)
	defer timer.Stop()
	select {
	case stay := <-s.confirm:
		return stay, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, ErrConfirmTimeout
	}
}

// ResolveConfirm delivers the participant's answer to a pending prompt.
func (s *Stream) ResolveConfirm(stay bool) {
	select {
	case s.confirm <- stay:
	default:
	}
}
