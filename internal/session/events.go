package session

import (
	"context"
	"time"

	"github.com/stemsi/exstem-player/internal/model"
)

// EventType enumerates what the controller pushes to its UI shell.
type EventType string

const (
	EventState   EventType = "state"
	EventTick    EventType = "tick"
	EventWarning EventType = "warning"
	EventBlock   EventType = "block"
	EventUnblock EventType = "unblock"
	EventResult  EventType = "result"
	EventError   EventType = "error"
	// EventConfirmStay asks the UI whether the participant meant to leave.
	EventConfirmStay EventType = "confirm_stay"
)

// Event is delivered to the Notifier. Only the fields relevant to Type are set.
type Event struct {
	Type    EventType     `json:"type"`
	State   State         `json:"state"`
	Message string        `json:"message,omitempty"`
	Grace   time.Duration `json:"grace_ms,omitempty"`

	// Unanswered lists question indices behind a navigation warning.
	Unanswered []int `json:"unanswered,omitempty"`

	SectionRemaining *int `json:"section_remaining,omitempty"`
	AccessRemaining  *int `json:"access_remaining,omitempty"`

	Result *model.Result `json:"result,omitempty"`
	Error  *Error        `json:"error,omitempty"`
}

// Notifier receives controller events. Notify is called with the controller
// lock held: it must not block and must not call back into the controller.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// Backend is the quiz backend join/submit contract.
type Backend interface {
	Join(ctx context.Context, quizID, participantName string) (*model.Quiz, error)
	Submit(ctx context.Context, sub model.Submission) error
}

// Fullscreen is a best-effort display control. Errors are reported as warnings.
type Fullscreen interface {
	Enter() error
	Exit() error
}

// Recorder receives the audit trail. Implementations must not block.
type Recorder interface {
	RecordIntegrity(ctx context.Context, ev model.IntegrityEvent)
	RecordSubmission(ctx context.Context, rec model.SubmissionRecord)
}

