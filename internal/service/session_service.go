package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/fingerprint"
	"github.com/stemsi/exstem-player/internal/integrity"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/session"
	"github.com/stemsi/exstem-player/internal/store"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

const (
	// DefaultRetention is how long a finished session stays readable.
	DefaultRetention = 15 * time.Minute
	// DefaultConfirmTimeout bounds how long a stay prompt waits for an answer.
	DefaultConfirmTimeout = 30 * time.Second
	// DefaultIdleTTL is how long an unfinished session survives with no
	// request and no connected stream.
	DefaultIdleTTL = 30 * time.Minute
	// JanitorInterval is how often finished and idle sessions are swept.
	JanitorInterval = time.Minute
)

// JoinInput is the request to start an attempt.
type JoinInput struct {
	Identity      model.Identity          `json:"identity" binding:"required"`
	QuizID        string                  `json:"quiz_id" binding:"required,max=64"`
	AcceptedRules bool                    `json:"accepted_rules"`
	Device        fingerprint.Environment `json:"device" binding:"required"`
}

// Joined is returned after a successful join.
type Joined struct {
	SessionID string              `json:"session_id"`
	Token     string              `json:"token"`
	QuizID    string              `json:"quiz_id"`
	Title     string              `json:"title,omitempty"`
	Config    model.SessionConfig `json:"config"`
	Questions []model.Question    `json:"questions"`
}

// SessionDeps are shared by every controller the service creates.
type SessionDeps struct {
	Backend     session.Backend
	Store       store.Device
	Recorder    session.Recorder
	Policy      *integrity.Policy
	SectionSize int
	// IdleTTL zero means DefaultIdleTTL.
	IdleTTL time.Duration
}

type entry struct {
	ctrl       *session.Controller
	stream     *Stream
	finishedAt time.Time
	lastSeen   time.Time
}

// SessionService keeps the live controllers of the HTTP front.
type SessionService struct {
	deps      SessionDeps
	tokens    *TokenService
	retention time.Duration
	idleTTL   time.Duration
	confirmTO time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewSessionService creates a new SessionService.
func NewSessionService(deps SessionDeps, tokens *TokenService, log zerolog.Logger) *SessionService {
	idle := deps.IdleTTL
	if idle <= 0 {
		idle = DefaultIdleTTL
	}
	return &SessionService{
		deps:      deps,
		tokens:    tokens,
		retention: DefaultRetention,
		idleTTL:   idle,
		confirmTO: DefaultConfirmTimeout,
		log:       log.With().Str("component", "session_service").Logger(),
		sessions:  make(map[string]*entry),
	}
}

// Create builds a controller, accepts the rules when the participant did,
// and joins. Failed joins leave nothing registered.
func (s *SessionService) Create(ctx context.Context, in JoinInput) (*Joined, error) {
	stream := NewStream(s.confirmTO)
	fp := fingerprint.Compute(in.Device)

	ctrl := session.New(session.Deps{
		Backend:     s.deps.Backend,
		Store:       s.deps.Store,
		Fingerprint: fp,
		Confirmer:   stream,
		Notifier:    stream,
		Recorder:    s.deps.Recorder,
		Policy:      s.deps.Policy,
		SectionSize: s.deps.SectionSize,
		Log:         s.log,
	})

	if in.AcceptedRules {
		if err := ctrl.AcceptRules(); err != nil {
			ctrl.Close()
			return nil, err
		}
	}

	cfg, err := ctrl.Join(ctx, in.Identity, in.QuizID)
	if err != nil {
		ctrl.Close()
		return nil, err
	}

	token, err := s.tokens.Generate(ctrl.ID(), in.QuizID, fp)
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("issue stream token: %w", err)
	}

	s.mu.Lock()
	s.sessions[ctrl.ID()] = &entry{ctrl: ctrl, stream: stream, lastSeen: time.Now()}
	s.mu.Unlock()

	view := ctrl.View()
	return &Joined{
		SessionID: ctrl.ID(),
		Token:     token,
		QuizID:    view.QuizID,
		Title:     view.Title,
		Config:    cfg,
		Questions: ctrl.Questions(),
	}, nil
}

// Get returns the controller and its event stream and counts as activity.
func (s *SessionService) Get(id string) (*session.Controller, *Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	e.lastSeen = time.Now()
	return e.ctrl, e.stream, nil
}

// Remove closes and forgets a session.
func (s *SessionService) Remove(id string) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		e.ctrl.Close()
	}
}

// Len returns the number of registered sessions.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run sweeps finished and idle sessions until ctx is cancelled, then closes every
// remaining controller.
func (s *SessionService) Run(ctx context.Context) {
	ticker := time.NewTicker(JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *SessionService) sweep(now time.Time) {
	var expired []*entry
	idle := 0

	s.mu.Lock()
	for id, e := range s.sessions {
		if !e.ctrl.State().Terminal() {
			// A connected stream keeps the attempt alive.
			if e.stream.Subscribers() > 0 {
				e.lastSeen = now
				continue
			}
			if now.Sub(e.lastSeen) >= s.idleTTL {
				expired = append(expired, e)
				delete(s.sessions, id)
				idle++
			}
			continue
		}
		if e.finishedAt.IsZero() {
			e.finishedAt = now
			continue
		}
		if now.Sub(e.finishedAt) >= s.retention {
			expired = append(expired, e)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.ctrl.Close()
	}
	if len(expired) > 0 {
		s.log.Debug().Int("count", len(expired)).Int("idle", idle).Msg("Swept sessions")
	}
}

func (s *SessionService) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range all {
		e.ctrl.Close()
	}
	s.log.Info().Int("count", len(all)).Msg("Closed all sessions")
}
