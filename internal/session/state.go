package session

import "fmt"

// Kind is the tag of a State.
type Kind int

const (
	AwaitingRules Kind = iota
	Joining
	InProgress
	ConfirmPending
	Submitting
	Completed
	Terminated
)

var kindNames = [...]string{
	AwaitingRules:  "awaiting_rules",
	Joining:        "joining",
	InProgress:     "in_progress",
	ConfirmPending: "confirm_pending",
	Submitting:     "submitting",
	Completed:      "completed",
	Terminated:     "terminated",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// State is the single tagged session state. Section is meaningful for
// InProgress, Revealed for Completed and Reason for Terminated.
type State struct {
	Kind     Kind   `json:"kind"`
	Section  int    `json:"section"`
	Revealed bool   `json:"revealed,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s.Kind == Completed || s.Kind == Terminated
}

func (s State) String() string {
	switch s.Kind {
	case InProgress:
		return fmt.Sprintf("in_progress(%d)", s.Section)
	case Completed:
		return fmt.Sprintf("completed(revealed=%t)", s.Revealed)
	case Terminated:
		return fmt.Sprintf("terminated(%s)", s.Reason)
	}
	return s.Kind.String()
}
