// Package session runs one participant attempt from rule acceptance to a
// recorded result. Every transition goes through the Controller's mutex;
// timers, the integrity monitor and the UI only ever call its methods.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/backend"
	"github.com/stemsi/exstem-player/internal/integrity"
	"github.com/stemsi/exstem-player/internal/ledger"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/pagination"
	"github.com/stemsi/exstem-player/internal/scoring"
	"github.com/stemsi/exstem-player/internal/store"
	"github.com/stemsi/exstem-player/internal/timer"
	"github.com/stemsi/exstem-player/internal/validator"
)

const (
	// DefaultSectionSize applies when neither the backend nor Deps set one.
	DefaultSectionSize = 20
	// ReasonClosed is the termination reason when the controller is closed mid-session.
	ReasonClosed = "closed"
)

// Deps are the collaborators of a Controller. Backend, Store and Fingerprint
// are required; the rest are optional.
type Deps struct {
	Backend     Backend
	Store       store.Device
	Fingerprint string

	Fullscreen Fullscreen
	Confirmer  integrity.Confirmer
	Notifier   Notifier
	Recorder   Recorder

	// Policy nil means integrity.DefaultPolicy. A zero Policy is a valid,
	// strict configuration.
	Policy      *integrity.Policy
	SectionSize int
	Resolver    *scoring.Resolver
	Log         zerolog.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithManualTicks disables the background ticker; the caller drives Tick.
func WithManualTicks() Option {
	return func(c *Controller) { c.autoTick = false }
}

// WithID sets the session id instead of a random UUID.
func WithID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// Controller is the session state machine.
type Controller struct {
	id       string
	deps     Deps
	now      func() time.Time
	autoTick bool
	log      zerolog.Logger

	mu            sync.Mutex
	state         State
	rulesAccepted bool
	closed        bool
	fullscreen    bool

	identity model.Identity
	quiz     *model.Quiz
	cfg      model.SessionConfig
	answers  *ledger.Ledger
	pages    *pagination.Paginator
	section  *timer.SectionTimer
	access   *timer.AccessWindow
	monitor  *integrity.Monitor
	runner   *timer.Runner

	result  *model.Result
	lastErr *Error
	// violation holds a termination raised while Submitting. It applies
	// if that submission fails.
	violation *Error
}

// New creates a controller in AwaitingRules.
func New(deps Deps, opts ...Option) *Controller {
	if deps.SectionSize <= 0 {
		deps.SectionSize = DefaultSectionSize
	}
	if deps.Resolver == nil {
		deps.Resolver = scoring.NewResolver(nil)
	}
	if deps.Policy == nil {
		p := integrity.DefaultPolicy()
		deps.Policy = &p
	}

	c := &Controller{
		id:       uuid.NewString(),
		deps:     deps,
		now:      time.Now,
		autoTick: true,
		state:    State{Kind: AwaitingRules},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = deps.Log.With().Str("component", "session").Str("session_id", c.id).Logger()
	return c
}

func (c *Controller) ID() string { return c.id }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Questions returns the joined question list, or nil before a join.
func (c *Controller) Questions() []model.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quiz == nil {
		return nil
	}
	out := make([]model.Question, len(c.quiz.Questions))
	copy(out, c.quiz.Questions)
	return out
}

// AcceptRules records that the participant accepted the rules of engagement.
func (c *Controller) AcceptRules() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state.Kind != AwaitingRules {
		return invalidTransition("accept rules", c.state)
	}
	c.rulesAccepted = true
	return nil
}

// Join validates the participant, checks the device replay lock, fetches the
// quiz and enters the first section. On any failure the controller is back
// in AwaitingRules with no partial state.
func (c *Controller) Join(ctx context.Context, identity model.Identity, quizID string) (model.SessionConfig, error) {
	quizID = strings.TrimSpace(quizID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.SessionConfig{}, ErrClosed
	}
	if c.state.Kind != AwaitingRules {
		err := invalidTransition("join", c.state)
		c.mu.Unlock()
		return model.SessionConfig{}, err
	}
	if !c.rulesAccepted {
		c.mu.Unlock()
		return model.SessionConfig{}, &Error{Kind: KindInvalidTransition, Message: "rules must be accepted before joining"}
	}
	fields := validator.Struct(identity)
	if quizID == "" {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["quiz_id"] = "quiz_id is a required field"
	}
	if fields != nil {
		c.mu.Unlock()
		return model.SessionConfig{}, &Error{Kind: KindValidation, Message: "participant details are incomplete", Fields: fields}
	}
	c.setState(State{Kind: Joining})
	c.mu.Unlock()

	quiz, lease, jerr := c.fetch(ctx, identity, quizID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.finishLocked(State{Kind: Terminated, Reason: ReasonClosed})
		return model.SessionConfig{}, ErrClosed
	}
	if jerr != nil {
		c.lastErr = jerr
		c.setState(State{Kind: AwaitingRules})
		c.notify(Event{Type: EventError, Message: jerr.Message, Error: jerr})
		c.log.Info().Str("quiz_id", quizID).Str("kind", string(jerr.Kind)).Msg("Join failed")
		return model.SessionConfig{}, jerr
	}

	c.install(identity, quiz, lease)
	c.log.Info().
		Str("quiz_id", quizID).
		Int("questions", len(quiz.Questions)).
		Int("sections", c.pages.SectionCount()).
		Msg("Participant joined")
	return c.cfg, nil
}

// fetch runs the suspending part of a join without the lock held.
func (c *Controller) fetch(ctx context.Context, identity model.Identity, quizID string) (*model.Quiz, store.Lease, *Error) {
	locked, err := store.HasReplayLock(ctx, c.deps.Store, quizID, c.deps.Fingerprint)
	if err != nil {
		return nil, store.Lease{}, newError(KindNetwork, "device store unavailable", err)
	}
	if locked {
		return nil, store.Lease{}, ErrAlreadySubmitted
	}

	quiz, err := c.deps.Backend.Join(ctx, quizID, identity.ParticipantName)
	if err != nil {
		if errors.Is(err, backend.ErrQuizUnavailable) {
			return nil, store.Lease{}, newError(KindQuizUnavailable, "quiz is inactive", err)
		}
		return nil, store.Lease{}, newError(KindNetwork, err.Error(), err)
	}
	if quiz == nil || !quiz.Active {
		return nil, store.Lease{}, newError(KindQuizUnavailable, "quiz is inactive", nil)
	}
	if len(quiz.Questions) == 0 {
		return nil, store.Lease{}, newError(KindQuizUnavailable, "quiz has no questions", nil)
	}

	var lease store.Lease
	if quiz.Config.AccessWindowed() {
		window := time.Duration(*quiz.Config.AccessWindowMinutes) * time.Minute
		lease, err = store.EnsureLease(ctx, c.deps.Store, quizID, c.deps.Fingerprint, window, c.now())
		if err != nil {
			return nil, store.Lease{}, newError(KindNetwork, "device store unavailable", err)
		}
	}
	return quiz, lease, nil
}

func (c *Controller) install(identity model.Identity, quiz *model.Quiz, lease store.Lease) {
	now := c.now()

	c.identity = identity
	c.quiz = quiz
	c.cfg = quiz.Config
	if c.cfg.SectionSize <= 0 {
		c.cfg.SectionSize = c.deps.SectionSize
	}

	c.answers = ledger.New(len(quiz.Questions))
	c.pages = pagination.New(len(quiz.Questions), c.cfg.SectionSize)
	if c.cfg.SectionTimed() {
		c.section = timer.NewSectionTimer(time.Duration(*c.cfg.SectionTimerSeconds) * time.Second)
	}
	if c.cfg.AccessWindowed() {
		c.access = timer.NewAccessWindow(lease.ExpiresAt, now)
	}
	c.monitor = integrity.NewMonitor(*c.deps.Policy, c.deps.Confirmer, c.onIntegrity, c.log)

	c.lastErr = nil
	c.setState(State{Kind: InProgress, Section: 0})
	c.section.Arm(now)
	c.monitor.Start()

	if c.deps.Fullscreen != nil {
		if err := c.deps.Fullscreen.Enter(); err != nil {
			c.notify(Event{Type: EventWarning, Message: "fullscreen unavailable: " + err.Error()})
		} else {
			c.fullscreen = true
		}
	}

	if c.autoTick {
		c.runner = timer.NewRunner(timer.TickInterval, func(time.Time) { c.Tick(c.now()) })
		c.runner.Start()
	}
}

// Select records the option text chosen for a question.
func (c *Controller) Select(index int, optionText string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Kind != InProgress {
		return invalidTransition("select", c.state)
	}
	if c.answers.Frozen() {
		return &Error{Kind: KindInvalidTransition, Message: "answers are locked after submission"}
	}
	if index < 0 || index >= len(c.quiz.Questions) {
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("question %d does not exist", index)}
	}
	if !c.quiz.Questions[index].HasOptionText(optionText) {
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("not an option of question %d", index)}
	}
	c.answers.Select(index, optionText)
	return nil
}

// Advance leaves the current section. On the last section it moves to
// ConfirmPending when every question is answered, or when forced.
func (c *Controller) Advance(force bool) (pagination.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Kind != InProgress {
		return pagination.Outcome{}, invalidTransition("advance", c.state)
	}
	return c.advanceLocked(force), nil
}

func (c *Controller) advanceLocked(force bool) pagination.Outcome {
	out := c.pages.Advance(force, c.answers.IsAnswered)
	switch out.Kind {
	case pagination.Moved:
		c.enterSection(c.pages.Current())
	case pagination.MovedWithWarning:
		c.enterSection(c.pages.Current())
		c.notify(Event{
			Type:       EventWarning,
			Message:    fmt.Sprintf("%d unanswered question(s) left in the previous section", len(out.Unanswered)),
			Unanswered: out.Unanswered,
		})
	case pagination.Confirm:
		c.section.Disarm()
		c.setState(State{Kind: ConfirmPending})
	case pagination.Refused:
		c.notify(Event{
			Type:       EventWarning,
			Message:    fmt.Sprintf("%d question(s) still unanswered", len(out.Unanswered)),
			Unanswered: out.Unanswered,
		})
	}
	return out
}

// Back returns to the previous section, restarting its timer.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Kind != InProgress {
		return invalidTransition("back", c.state)
	}
	if !c.pages.Back() {
		return &Error{Kind: KindInvalidTransition, Message: "already on the first section"}
	}
	c.enterSection(c.pages.Current())
	return nil
}

// GoToSection switches to section s.
func (c *Controller) GoToSection(s int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Kind != InProgress {
		return invalidTransition("go to section", c.state)
	}
	if s < 0 || s >= c.pages.SectionCount() {
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("section %d does not exist", s)}
	}
	if s != c.pages.Current() {
		c.pages.GoTo(s)
		c.enterSection(s)
	}
	return nil
}

// JumpTo switches to the section owning question q and returns it.
func (c *Controller) JumpTo(q int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Kind != InProgress {
		return 0, invalidTransition("jump", c.state)
	}
	prev := c.pages.Current()
	s, err := c.pages.JumpTo(q)
	if err != nil {
		return prev, &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	}
	if s != prev {
		c.enterSection(s)
	}
	return s, nil
}

// Cancel leaves ConfirmPending for the last section.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Kind != ConfirmPending {
		return invalidTransition("cancel", c.state)
	}
	c.enterSection(c.pages.GoTo(c.pages.SectionCount() - 1))
	return nil
}

func (c *Controller) enterSection(s int) {
	c.setState(State{Kind: InProgress, Section: s})
	if !c.answers.Frozen() {
		c.section.Arm(c.now())
	}
}

// Confirm submits from ConfirmPending.
func (c *Controller) Confirm(ctx context.Context) (*model.Result, error) {
	c.mu.Lock()
	switch c.state.Kind {
	case ConfirmPending:
		return c.submitLocked(ctx, false)
	case Submitting:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	err := invalidTransition("confirm", c.state)
	c.mu.Unlock()
	return nil, err
}

// Submit sends the answers. It is allowed from ConfirmPending and, after a
// failed attempt, from the last section to retry. A call while another
// submit is pending returns ErrSubmitInFlight without a network call.
func (c *Controller) Submit(ctx context.Context) (*model.Result, error) {
	c.mu.Lock()
	switch {
	case c.state.Kind == Submitting:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	case c.state.Kind == ConfirmPending,
		c.state.Kind == InProgress && c.answers.Frozen():
		return c.submitLocked(ctx, false)
	}
	err := invalidTransition("submit", c.state)
	c.mu.Unlock()
	return nil, err
}

// submitLocked is entered with c.mu held and returns with it released.
func (c *Controller) submitLocked(ctx context.Context, forced bool) (*model.Result, error) {
	if !forced && !validator.Email(c.identity.Email) {
		c.mu.Unlock()
		return nil, &Error{
			Kind:    KindValidation,
			Message: "invalid email format",
			Fields:  map[string]string{"email": "email must be a valid email address"},
		}
	}

	c.answers.Freeze()
	c.section.Disarm()
	c.setState(State{Kind: Submitting})

	score := c.deps.Resolver.Score(c.quiz.Questions, c.answers)
	if len(score.Unresolved) > 0 {
		c.log.Warn().
			Ints("questions", score.Unresolved).
			Err(ErrKeyDecode).
			Msg("Counting unresolvable questions as incorrect")
	}
	sub := model.Submission{
		QuizID:          c.quiz.ID,
		ParticipantName: c.identity.ParticipantName,
		Email:           c.identity.Email,
		StudentClass:    c.identity.StudentClass,
		Division:        c.identity.Division,
		RollNo:          c.identity.RollNo,
		Score:           score.Correct,
		OutOf:           score.Total,
	}
	c.mu.Unlock()

	err := c.deps.Backend.Submit(ctx, sub)
	if err == nil {
		if lerr := store.WriteReplayLock(context.WithoutCancel(ctx), c.deps.Store, sub.QuizID, c.deps.Fingerprint); lerr != nil {
			c.log.Error().Err(lerr).Msg("Failed to write replay lock")
		}
	}
	c.recordSubmission(sub, forced, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		e := newError(KindNetwork, err.Error(), err)
		c.lastErr = e
		c.log.Error().Err(err).Bool("forced", forced).Msg("Submission failed")
		if c.closed {
			c.finishLocked(State{Kind: Terminated, Reason: ReasonClosed})
			return nil, e
		}
		if v := c.violation; v != nil {
			c.violation = nil
			c.terminateLocked(v)
			return nil, v
		}
		c.enterSection(c.pages.GoTo(c.pages.SectionCount() - 1))
		c.notify(Event{Type: EventError, Message: e.Message, Error: e})
		return nil, e
	}

	res := &model.Result{Score: score.Correct, OutOf: score.Total, Revealed: c.cfg.RevealScoreOnSubmit}
	if res.Revealed {
		res.Review = c.deps.Resolver.Review(c.quiz.Questions, c.answers)
	}
	c.result = res
	c.lastErr = nil
	c.violation = nil
	c.finishLocked(State{Kind: Completed, Revealed: res.Revealed})
	c.notify(Event{Type: EventResult, Result: res})
	c.log.Info().
		Int("score", res.Score).
		Int("out_of", res.OutOf).
		Bool("forced", forced).
		Msg("Submission recorded")
	return res, nil
}

// Signal forwards an integrity signal to the monitor. Signals outside
// InProgress and ConfirmPending are ignored. A blur may block until the
// participant answers the stay confirmation.
func (c *Controller) Signal(ctx context.Context, sig integrity.Signal) {
	c.mu.Lock()
	if (c.state.Kind != InProgress && c.state.Kind != ConfirmPending) || c.monitor == nil {
		c.mu.Unlock()
		return
	}
	m := c.monitor
	c.mu.Unlock()

	m.Handle(ctx, sig)
}

func (c *Controller) onIntegrity(ev integrity.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Kind == integrity.EventInfraction {
		c.recordIntegrity(ev)
		return
	}
	if ev.Kind == integrity.EventTerminate && c.state.Kind == Submitting {
		c.log.Warn().Msg("Integrity violation during submission, deferred")
		c.violation = &Error{Kind: KindIntegrityViolation, Message: ev.Message}
		return
	}
	if c.state.Kind != InProgress && c.state.Kind != ConfirmPending {
		return
	}

	switch ev.Kind {
	case integrity.EventWarning:
		c.notify(Event{Type: EventWarning, Message: ev.Message})
	case integrity.EventSoftBlock:
		c.notify(Event{Type: EventBlock, Message: ev.Message, Grace: ev.Grace})
	case integrity.EventUnblock:
		c.notify(Event{Type: EventUnblock})
	case integrity.EventTerminate:
		c.terminateLocked(&Error{Kind: KindIntegrityViolation, Message: ev.Message})
	}
}

func (c *Controller) terminateLocked(e *Error) {
	c.lastErr = e
	c.finishLocked(State{Kind: Terminated, Reason: integrity.ReasonViolation})
	c.notify(Event{Type: EventError, Message: e.Message, Error: e})
}

// Tick advances both timers. Access window expiry forces a submission;
// section expiry forces an advance.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	if c.state.Kind != InProgress && c.state.Kind != ConfirmPending {
		c.mu.Unlock()
		return
	}

	if c.access.Tick(now) {
		c.log.Info().Msg("Access window expired, submitting")
		c.notify(Event{Type: EventWarning, Message: "access window expired, submitting"})
		_, _ = c.submitLocked(context.Background(), true)
		return
	}

	if c.state.Kind == InProgress && c.section.Tick(now) {
		c.log.Debug().Int("section", c.state.Section).Msg("Section time expired")
		c.advanceLocked(true)
	}

	if c.section.Enabled() || c.access != nil {
		c.notify(Event{
			Type:             EventTick,
			SectionRemaining: c.sectionRemaining(now),
			AccessRemaining:  c.accessRemaining(now),
		})
	}
	c.mu.Unlock()
}

// View returns a snapshot of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	v := View{
		SessionID: c.id,
		State:     c.state,
		Config:    c.cfg,
		Result:    c.result,
		LastError: c.lastErr,
	}
	if c.quiz == nil {
		return v
	}

	v.QuizID = c.quiz.ID
	v.Title = c.quiz.Title
	v.SectionCount = c.pages.SectionCount()
	v.SectionStart, v.SectionEnd = c.pages.Bounds(c.pages.Current())
	v.Answered = c.answers.CompletionCount()
	v.Total = c.answers.Total()
	v.Answers = c.answers.Snapshot()
	v.SectionRemaining = c.sectionRemaining(now)
	v.AccessRemaining = c.accessRemaining(now)
	if c.monitor != nil {
		v.Infractions = c.monitor.Infractions()
	}
	return v
}

// Close stops timers and the monitor. A pending submission still completes.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	switch c.state.Kind {
	case Joining, Submitting, Completed, Terminated:
		return
	}
	c.finishLocked(State{Kind: Terminated, Reason: ReasonClosed})
}

// finishLocked stops everything that can still raise events, then enters
// the terminal state.
func (c *Controller) finishLocked(st State) {
	if c.runner != nil {
		c.runner.Stop()
	}
	if c.monitor != nil {
		c.monitor.Stop()
	}
	c.section.Disarm()
	if c.answers != nil {
		c.answers.Freeze()
	}
	if c.fullscreen {
		if err := c.deps.Fullscreen.Exit(); err != nil {
			c.log.Debug().Err(err).Msg("Fullscreen exit failed")
		}
		c.fullscreen = false
	}
	c.setState(st)
}

func (c *Controller) setState(st State) {
	prev := c.state
	c.state = st
	c.log.Debug().Str("from", prev.String()).Str("to", st.String()).Msg("Session transition")
	c.notify(Event{Type: EventState})
}

func (c *Controller) notify(ev Event) {
	if c.deps.Notifier == nil {
		return
	}
	ev.State = c.state
	c.deps.Notifier.Notify(ev)
}

func (c *Controller) sectionRemaining(now time.Time) *int {
	if !c.section.Armed() {
		return nil
	}
	secs := int(c.section.Remaining(now) / time.Second)
	return &secs
}

func (c *Controller) accessRemaining(now time.Time) *int {
	if c.access == nil {
		return nil
	}
	secs := int(c.access.Remaining(now) / time.Second)
	return &secs
}

func (c *Controller) recordIntegrity(ev integrity.Event) {
	if c.deps.Recorder == nil {
		return
	}
	quizID := ""
	if c.quiz != nil {
		quizID = c.quiz.ID
	}
	c.deps.Recorder.RecordIntegrity(context.Background(), model.IntegrityEvent{
		SessionID:   c.id,
		QuizID:      quizID,
		Fingerprint: c.deps.Fingerprint,
		Signal:      string(ev.Signal.Kind),
		Detail:      ev.Signal.Key,
		Infractions: ev.Infractions,
		RecordedAt:  c.now().UTC(),
	})
}

func (c *Controller) recordSubmission(sub model.Submission, forced bool, err error) {
	if c.deps.Recorder == nil {
		return
	}
	rec := model.SubmissionRecord{
		SessionID:   c.id,
		QuizID:      sub.QuizID,
		Fingerprint: c.deps.Fingerprint,
		Email:       sub.Email,
		Score:       sub.Score,
		OutOf:       sub.OutOf,
		Forced:      forced,
		Succeeded:   err == nil,
		RecordedAt:  c.now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	c.deps.Recorder.RecordSubmission(context.Background(), rec)
}
