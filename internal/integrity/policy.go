package integrity

import "time"

// Policy holds the escalation thresholds. They are configuration, loaded from
// the policy file when one is set.
type Policy struct {
	// HideWarnings is how many tab-hide events only warn; the next one terminates.
	HideWarnings int `yaml:"hide_warnings"`
	// KeyComboGrace is how long focus has to come back after a restricted key.
	KeyComboGrace time.Duration `yaml:"key_combo_grace"`
	// PointerLeaveGrace is how long the pointer may stay outside the page.
	// Zero disables pointer tracking.
	PointerLeaveGrace time.Duration `yaml:"pointer_leave_grace"`
	// ConfirmBlur asks the participant before terminating on focus loss.
	// When false a blur only warns.
	ConfirmBlur bool `yaml:"confirm_blur"`
	// FullscreenExitTerminates ends the attempt when fullscreen is left.
	FullscreenExitTerminates bool `yaml:"fullscreen_exit_terminates"`
}

// DefaultPolicy mirrors the classic arena rules: one warning for a tab switch,
// 1.5s to recover from a blocked screen.
func DefaultPolicy() Policy {
	return Policy{
		HideWarnings:      1,
		KeyComboGrace:     1500 * time.Millisecond,
		PointerLeaveGrace: 1500 * time.Millisecond,
		ConfirmBlur:       true,
	}
}
