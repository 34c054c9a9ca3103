package websocket

import "github.com/stemsi/exstem-player/internal/integrity"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect      Action = "select"
	ActionAdvance     Action = "advance"
	ActionBack        Action = "back"
	ActionGoTo        Action = "goto"
	ActionJump        Action = "jump"
	ActionCancel      Action = "cancel"
	ActionConfirm     Action = "confirm"
	ActionSubmit      Action = "submit"
	ActionSignal      Action = "signal"
	ActionConfirmStay Action = "confirm_stay"
	ActionView        Action = "view"
	ActionPing        Action = "ping"
)

// RequestPayload is every client message. Only the fields the action
// needs are read.
type RequestPayload struct {
	Action Action `json:"action"`

	// select
	Index  int    `json:"index"`
	Option string `json:"option"`

	// advance
	Force bool `json:"force"`

	// goto / jump
	Section  int `json:"section"`
	Question int `json:"question"`

	// signal
	Signal *SignalPayload `json:"signal,omitempty"`

	// confirm_stay
	Stay bool `json:"stay"`
}

// SignalPayload is an integrity observation. Kind "keydown" carries a raw
// key press that the server classifies; any other kind is passed through.
type SignalPayload struct {
	Kind  string `json:"kind"`
	Key   string `json:"key,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
	Shift bool   `json:"shift,omitempty"`
}

// SignalKindKeyDown marks a raw key press in SignalPayload.
const SignalKindKeyDown = "keydown"

// ToSignal converts the payload. ok is false for unknown kinds and for key
// presses that are not restricted.
func (p SignalPayload) ToSignal() (integrity.Signal, bool) {
	if p.Kind == SignalKindKeyDown {
		combo, restricted := integrity.RestrictedCombo(p.Key, p.Ctrl, p.Meta, p.Shift)
		if !restricted {
			return integrity.Signal{}, false
		}
		return integrity.Signal{Kind: integrity.SignalRestrictedKey, Key: combo}, true
	}
	kind := integrity.SignalKind(p.Kind)
	if !kind.Valid() {
		return integrity.Signal{}, false
	}
	return integrity.Signal{Kind: kind, Key: p.Key}, true
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	// Controller events are forwarded under their own type
	// (state, tick, warning, block, unblock, confirm_stay, result, error).
	EventView       Event = "view"
	EventNavigation Event = "navigation"
	EventAck        Event = "ack"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

// Envelope wraps every server message.
type Envelope struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorResponse is the data of an error event.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// NavigationResponse reports the outcome of advance / jump.
type NavigationResponse struct {
	Outcome    string `json:"outcome"`
	Section    int    `json:"section"`
	Unanswered []int  `json:"unanswered,omitempty"`
}

// AckResponse acknowledges an action that has no other reply.
type AckResponse struct {
	Action Action `json:"action"`
}
