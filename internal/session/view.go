package session

import (
	"github.com/stemsi/exstem-player/internal/ledger"
	"github.com/stemsi/exstem-player/internal/model"
)

// View is a read-only snapshot for rendering.
type View struct {
	SessionID string              `json:"session_id"`
	QuizID    string              `json:"quiz_id,omitempty"`
	Title     string              `json:"title,omitempty"`
	State     State               `json:"state"`
	Config    model.SessionConfig `json:"config"`

	SectionCount int `json:"section_count"`
	SectionStart int `json:"section_start"`
	SectionEnd   int `json:"section_end"`

	Answered int            `json:"answered"`
	Total    int            `json:"total"`
	Answers  []ledger.Entry `json:"answers,omitempty"`

	// Remaining times in whole seconds; nil when the timer is not running.
	SectionRemaining *int `json:"section_remaining,omitempty"`
	AccessRemaining  *int `json:"access_remaining,omitempty"`

	Infractions int           `json:"infractions"`
	Result      *model.Result `json:"result,omitempty"`
	LastError   *Error        `json:"last_error,omitempty"`
}
