// Package player is the terminal shell around a session controller. It
// decodes raw-mode key presses into controller calls and integrity signals,
// and redraws the screen on every controller event.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/integrity"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/pagination"
	"github.com/stemsi/exstem-player/internal/session"
)

// ErrRulesDeclined is returned when the participant quits at the rules screen.
var ErrRulesDeclined = errors.New("rules declined")

// ErrQuit is returned when the participant quits an unfinished session.
var ErrQuit = errors.New("quit before finishing")

const (
	eventBuffer  = 64
	signalBuffer = 16
	// ConfirmTimeout bounds the stay prompt.
	ConfirmTimeout = 30 * time.Second
)

// Shell drives one controller from a terminal. It is the controller's
// Notifier, Confirmer and Fullscreen.
type Shell struct {
	in  io.Reader
	out io.Writer
	log zerolog.Logger

	mu      sync.Mutex // guards out
	events  chan session.Event
	keys    chan Key
	signals chan integrity.Signal

	confirming atomic.Bool
	confirm    chan bool
	done       chan struct{}

	ctrl      *session.Controller
	questions []model.Question
	section   int
	prompt    prompt
}

// NewShell creates a Shell reading keys from in and drawing on out.
func NewShell(in io.Reader, out io.Writer, log zerolog.Logger) *Shell {
	return &Shell{
		in:      in,
		out:     out,
		log:     log.With().Str("component", "player").Logger(),
		events:  make(chan session.Event, eventBuffer),
		keys:    make(chan Key, eventBuffer),
		signals: make(chan integrity.Signal, signalBuffer),
		confirm: make(chan bool, 1),
		done:    make(chan struct{}),
	}
}

// Notify implements session.Notifier. Events are dropped when the screen
// falls behind; every redraw reads a fresh view anyway.
func (s *Shell) Notify(ev session.Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// ConfirmStay implements integrity.Confirmer with a y/n prompt.
func (s *Shell) ConfirmStay(ctx context.Context) (bool, error) {
	select {
	case <-s.confirm:
	default:
	}
	s.confirming.Store(true)
	defer s.confirming.Store(false)
	s.Notify(session.Event{Type: session.EventConfirmStay})

	timer := time.NewTimer(ConfirmTimeout)
	defer timer.Stop()
	select {
	case stay := <-s.confirm:
		return stay, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, errors.New("no answer to stay prompt")
	}
}

// Enter implements session.Fullscreen with the terminal's alternate screen.
func (s *Shell) Enter() error {
	return s.write(altScreenOn + focusReportOn)
}

// Exit leaves the alternate screen.
func (s *Shell) Exit() error {
	return s.write(focusReportOff + altScreenOff)
}

func (s *Shell) write(str string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, str)
	return err
}

// Run shows the rules, joins and plays until the participant quits after
// the session ends. It returns the controller's join error, ErrRulesDeclined,
// ErrQuit, or ctx.Err().
func (s *Shell) Run(ctx context.Context, ctrl *session.Controller, identity model.Identity, quizID string) error {
	s.ctrl = ctrl
	defer close(s.done)
	go s.readKeys()

	var wg sync.WaitGroup
	sigCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.forwardSignals(sigCtx)
	}()

	if err := s.acceptRules(ctx, quizID); err != nil {
		return err
	}

	s.draw(func(w io.Writer) { line(w, colorize("Joining quiz %s...", colorYellow), quizID) })
	if _, err := ctrl.Join(ctx, identity, quizID); err != nil {
		return err
	}
	s.questions = ctrl.Questions()
	s.prompt.cursor = 0
	s.redraw()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.onEvent(ev)
		case k, ok := <-s.keys:
			if !ok {
				return io.EOF
			}
			if done, err := s.onKey(ctx, k); done {
				return err
			}
		}
		s.redraw()
	}
}

func (s *Shell) acceptRules(ctx context.Context, quizID string) error {
	s.draw(func(w io.Writer) { renderRules(w, "Quiz "+quizID) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case k, ok := <-s.keys:
			if !ok {
				return io.EOF
			}
			switch {
			case k.Kind == KeyRune && (k.Rune == 'y' || k.Rune == 'Y'):
				return s.ctrl.AcceptRules()
			case k.Kind == KeyCtrlC, k.Kind == KeyRune && (k.Rune == 'q' || k.Rune == 'n'):
				return ErrRulesDeclined
			}
		}
	}
}

func (s *Shell) readKeys() {
	defer close(s.keys)
	buf := make([]byte, 64)
	for {
		n, err := s.in.Read(buf)
		for _, k := range Decode(buf[:n]) {
			select {
			case s.keys <- k:
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// forwardSignals calls the controller off the key loop: a blur confirmation
// blocks until the y/n key arrives through the key loop.
func (s *Shell) forwardSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.signals:
			s.ctrl.Signal(ctx, sig)
		}
	}
}

func (s *Shell) signal(sig integrity.Signal) {
	select {
	case s.signals <- sig:
	default:
		s.log.Warn().Str("signal", string(sig.Kind)).Msg("Signal queue full, dropping")
	}
}

func (s *Shell) onEvent(ev session.Event) {
	switch ev.Type {
	case session.EventWarning:
		s.setStatus(ev.Message, colorYellow)
	case session.EventBlock:
		s.prompt.blocked = true
	case session.EventUnblock:
		s.prompt.blocked = false
	case session.EventError:
		s.setStatus(ev.Message, colorRed)
	}
	s.prompt.confirming = s.confirming.Load()
}

// onKey handles one key. done reports that Run should return err.
func (s *Shell) onKey(ctx context.Context, k Key) (done bool, err error) {
	if s.confirming.Load() {
		if k.Kind == KeyRune && (k.Rune == 'y' || k.Rune == 'n') {
			select {
			case s.confirm <- k.Rune == 'y':
			default:
			}
		}
		return false, nil
	}

	switch k.Kind {
	case KeyFocusOut:
		s.signal(integrity.Signal{Kind: integrity.SignalBlur})
		return false, nil
	case KeyFocusIn:
		s.signal(integrity.Signal{Kind: integrity.SignalFocus})
		return false, nil
	case KeyCtrlP:
		s.signal(integrity.Signal{Kind: integrity.SignalRestrictedKey, Key: "Ctrl+P"})
		return false, nil
	case KeyCtrlC:
		return s.quit()
	}

	st := s.ctrl.State()
	if st.Terminal() {
		if (k.Kind == KeyRune && k.Rune == 'q') || k.Kind == KeyEnter {
			return true, nil
		}
		return false, nil
	}

	if s.prompt.jumping {
		s.onJumpKey(k)
		return false, nil
	}

	switch k.Kind {
	case KeyUp:
		s.moveCursor(-1)
	case KeyDown:
		s.moveCursor(1)
	case KeyRune:
		return s.onRune(ctx, k.Rune, st)
	}
	return false, nil
}

func (s *Shell) onRune(ctx context.Context, r rune, st session.State) (bool, error) {
	s.setStatus("", "")
	switch {
	case r >= '1' && r <= '4':
		q := s.questions[s.prompt.cursor]
		s.report(s.ctrl.Select(q.Index, q.Options[r-'1'].Text))
	case r == 'n' || r == 'N':
		out, err := s.ctrl.Advance(r == 'N')
		if err != nil {
			s.report(err)
			break
		}
		s.describeOutcome(out)
	case r == 'p':
		s.report(s.ctrl.Back())
	case r == 'j':
		s.prompt.jumping, s.prompt.jumpBuf = true, ""
	case r == 's':
		s.redrawSubmitting()
		if st.Kind == session.ConfirmPending {
			_, err := s.ctrl.Confirm(ctx)
			s.report(err)
		} else {
			_, err := s.ctrl.Submit(ctx)
			s.report(err)
		}
	case r == 'c':
		s.report(s.ctrl.Cancel())
	case r == 'q':
		return s.quit()
	}
	return false, nil
}

func (s *Shell) onJumpKey(k Key) {
	switch k.Kind {
	case KeyEscape:
		s.prompt.jumping = false
	case KeyBackspace:
		if n := len(s.prompt.jumpBuf); n > 0 {
			s.prompt.jumpBuf = s.prompt.jumpBuf[:n-1]
		}
	case KeyEnter:
		s.prompt.jumping = false
		n, err := strconv.Atoi(s.prompt.jumpBuf)
		if err != nil {
			s.setStatus("Enter a question number.", colorRed)
			return
		}
		section, err := s.ctrl.JumpTo(n - 1)
		if err != nil {
			s.report(err)
			return
		}
		s.section, s.prompt.cursor = section, n-1
	case KeyRune:
		if k.Rune >= '0' && k.Rune <= '9' && len(s.prompt.jumpBuf) < 4 {
			s.prompt.jumpBuf += string(k.Rune)
		}
	}
}

func (s *Shell) describeOutcome(out pagination.Outcome) {
	switch out.Kind {
	case pagination.MovedWithWarning:
		s.setStatus(fmt.Sprintf("Moved on with %d unanswered question(s) behind.", len(out.Unanswered)), colorYellow)
	case pagination.Refused:
		s.setStatus(fmt.Sprintf("%d question(s) unanswered: %s. Press N to finish anyway.",
			len(out.Unanswered), questionList(out.Unanswered)), colorRed)
	}
}

func (s *Shell) quit() (bool, error) {
	if s.ctrl.State().Terminal() {
		return true, nil
	}
	s.ctrl.Close()
	return true, ErrQuit
}

func (s *Shell) report(err error) {
	if err == nil {
		return
	}
	var se *session.Error
	if errors.As(err, &se) {
		s.setStatus(se.Message, colorRed)
		return
	}
	s.setStatus(err.Error(), colorRed)
}

func (s *Shell) setStatus(msg, tone string) {
	s.prompt.status, s.prompt.statusTone = msg, tone
}

func (s *Shell) moveCursor(delta int) {
	s.prompt.cursor += delta
	s.clampCursor()
}

// clampCursor keeps the cursor inside the visible section.
func (s *Shell) clampCursor() {
	v := s.ctrl.View()
	if s.prompt.cursor < v.SectionStart {
		s.prompt.cursor = v.SectionStart
	}
	if s.prompt.cursor >= v.SectionEnd {
		s.prompt.cursor = v.SectionEnd - 1
	}
}

func (s *Shell) redraw() {
	v := s.ctrl.View()
	// a section change, by key or by timer, puts the cursor on its first question
	if v.State.Kind == session.InProgress && v.State.Section != s.section {
		s.section = v.State.Section
		s.prompt.cursor = v.SectionStart
	}
	p := s.prompt
	p.confirming = s.confirming.Load()
	s.draw(func(w io.Writer) { renderView(w, v, s.questions, p) })
}

func (s *Shell) redrawSubmitting() {
	s.draw(func(w io.Writer) {
		io.WriteString(w, clearScreen)
		line(w, colorize("Submitting your answers...", colorYellow))
	})
}

func (s *Shell) draw(fn func(io.Writer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.out)
}

func questionList(idx []int) string {
	const limit = 8
	out := ""
	for i, q := range idx {
		if i == limit {
			out += ", ..."
			break
		}
		if i > 0 {
			out += ", "
		}
		out += strconv.Itoa(q + 1)
	}
	return out
}
