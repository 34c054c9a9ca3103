package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures.
type ErrorKind string

const (
	KindAlreadySubmitted   ErrorKind = "already_submitted"
	KindQuizUnavailable    ErrorKind = "quiz_unavailable"
	KindValidation         ErrorKind = "validation_error"
	KindNetwork            ErrorKind = "network_error"
	KindIntegrityViolation ErrorKind = "integrity_violation"
	KindKeyDecode          ErrorKind = "key_decode_error"
	KindInvalidTransition  ErrorKind = "invalid_transition"
)

// Error is returned by controller operations. Recoverable kinds leave the
// controller in a state that permits a retry.
type Error struct {
	Kind    ErrorKind         `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Recoverable reports whether the participant may correct and retry.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindAlreadySubmitted, KindIntegrityViolation:
		return false
	}
	return true
}

var (
	ErrAlreadySubmitted   = &Error{Kind: KindAlreadySubmitted, Message: "this quiz was already submitted from this device"}
	ErrQuizUnavailable    = &Error{Kind: KindQuizUnavailable, Message: "quiz is inactive or has no questions"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNetwork            = &Error{Kind: KindNetwork, Message: "backend request failed"}
	ErrIntegrityViolation = &Error{Kind: KindIntegrityViolation, Message: "session terminated for an integrity violation"}
	ErrKeyDecode          = &Error{Kind: KindKeyDecode, Message: "answer key could not be decoded"}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition, Message: "operation not allowed in the current state"}

	// ErrSubmitInFlight is returned by a submit issued while another is pending.
	ErrSubmitInFlight = errors.New("submit already in flight")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("session closed")
)

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func invalidTransition(op string, s State) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("%s not allowed in state %s", op, s)}
}
