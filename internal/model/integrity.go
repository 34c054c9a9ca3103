package model

import "time"

// IntegrityEvent is one recorded infraction, kept for the proctoring audit trail.
type IntegrityEvent struct {
	SessionID   string    `json:"session_id"`
	QuizID      string    `json:"quiz_id"`
	Fingerprint string    `json:"fingerprint"`
	Signal      string    `json:"signal"`
	Detail      string    `json:"detail,omitempty"`
	Infractions int       `json:"infractions"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// SubmissionRecord is the audit row written after each submit attempt.
type SubmissionRecord struct {
	SessionID   string    `json:"session_id"`
	QuizID      string    `json:"quiz_id"`
	Fingerprint string    `json:"fingerprint"`
	Email       string    `json:"email"`
	Score       int       `json:"score"`
	OutOf       int       `json:"out_of"`
	Forced      bool      `json:"forced"`
	Succeeded   bool      `json:"succeeded"`
	Error       string    `json:"error,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}
