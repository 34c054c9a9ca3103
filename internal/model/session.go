package model

// SessionConfig is supplied by the backend at join time and never changes
// for the lifetime of one session.
type SessionConfig struct {
	SectionSize         int  `json:"section_size"`
	SectionTimerSeconds *int `json:"section_timer_seconds,omitempty"`
	AccessWindowMinutes *int `json:"access_window_minutes,omitempty"`
	RevealScoreOnSubmit bool `json:"reveal_score_on_submit"`
}

// SectionTimed reports whether a per-section countdown is configured.
func (c SessionConfig) SectionTimed() bool {
	return c.SectionTimerSeconds != nil && *c.SectionTimerSeconds > 0
}

// AccessWindowed reports whether an absolute access deadline is configured.
func (c SessionConfig) AccessWindowed() bool {
	return c.AccessWindowMinutes != nil && *c.AccessWindowMinutes > 0
}

// Identity holds the participant fields collected before joining.
type Identity struct {
	ParticipantName string `json:"participant_name" validate:"required,notblank,max=120"`
	Email           string `json:"email" validate:"required,email"`
	StudentClass    string `json:"student_class" validate:"required,notblank"`
	Division        string `json:"division" validate:"required,notblank"`
	RollNo          string `json:"roll_no" validate:"required,notblank"`
}

// Quiz is the join response after decoding: the question list plus config.
type Quiz struct {
	ID        string        `json:"quiz_id"`
	Title     string        `json:"title,omitempty"`
	Active    bool          `json:"active"`
	Questions []Question    `json:"questions"`
	Config    SessionConfig `json:"config"`
}

// Submission is the payload sent exactly once per submit invocation.
type Submission struct {
	QuizID          string `json:"quizId"`
	ParticipantName string `json:"participantName"`
	Email           string `json:"email"`
	StudentClass    string `json:"studentClass"`
	Division        string `json:"division"`
	RollNo          string `json:"rollNo"`
	Score           int    `json:"score"`
	OutOf           int    `json:"outOf"`
}

// QuestionReview is the per-question outcome shown after a revealed submit.
type QuestionReview struct {
	Index       int    `json:"index"`
	Selected    string `json:"selected,omitempty"`
	CorrectText string `json:"correct_text,omitempty"`
	Correct     bool   `json:"correct"`
	Resolved    bool   `json:"resolved"`
}

// Result is what the participant sees once the session completes.
type Result struct {
	Score    int              `json:"score"`
	OutOf    int              `json:"out_of"`
	Revealed bool             `json:"revealed"`
	Review   []QuestionReview `json:"review,omitempty"`
}
