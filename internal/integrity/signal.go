package integrity

import "strings"

// SignalKind is one of the closed set of inputs the monitor understands.
type SignalKind string

const (
	SignalBlur              SignalKind = "blur"
	SignalFocus             SignalKind = "focus"
	SignalPointerLeave      SignalKind = "pointer_leave"
	SignalPointerEnter      SignalKind = "pointer_enter"
	SignalVisibilityHidden  SignalKind = "visibility_hidden"
	SignalVisibilityVisible SignalKind = "visibility_visible"
	SignalFullscreenExit    SignalKind = "fullscreen_exit"
	SignalFullscreenEnter   SignalKind = "fullscreen_enter"
	SignalRestrictedKey     SignalKind = "restricted_key"
)

// Signal is a single observation forwarded by the UI shell.
type Signal struct {
	Kind SignalKind `json:"kind"`
	// Key names the combo for SignalRestrictedKey, e.g. "PrintScreen" or "Ctrl+P".
	Key string `json:"key,omitempty"`
}

// Valid reports whether k is a known signal kind.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalBlur, SignalFocus, SignalPointerLeave, SignalPointerEnter,
		SignalVisibilityHidden, SignalVisibilityVisible,
		SignalFullscreenExit, SignalFullscreenEnter, SignalRestrictedKey:
		return true
	}
	return false
}

// infraction reports whether the signal counts against the participant.
func (k SignalKind) infraction() bool {
	switch k {
	case SignalBlur, SignalPointerLeave, SignalVisibilityHidden, SignalFullscreenExit, SignalRestrictedKey:
		return true
	}
	return false
}

// RestrictedCombo classifies a raw key press. It returns the combo name and
// true for print-screen, print and OS screenshot shortcuts.
func RestrictedCombo(key string, ctrl, meta, shift bool) (string, bool) {
	switch key {
	case "PrintScreen", "Snapshot":
		return key, true
	}
	k := strings.ToLower(key)
	if ctrl && k == "p" {
		return "Ctrl+P", true
	}
	if meta && shift && (k == "s" || k == "4") {
		return "Meta+Shift+" + strings.ToUpper(k), true
	}
	return "", false
}
