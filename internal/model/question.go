package model

// OptionKey identifies one of the four answer slots of a question.
type OptionKey string

const (
	Opt1 OptionKey = "opt1"
	Opt2 OptionKey = "opt2"
	Opt3 OptionKey = "opt3"
	Opt4 OptionKey = "opt4"
)

// OptionKeys lists the keys in display order.
var OptionKeys = [4]OptionKey{Opt1, Opt2, Opt3, Opt4}

// IsOptionKey reports whether s is one of the four plain option keys.
func IsOptionKey(s string) bool {
	switch OptionKey(s) {
	case Opt1, Opt2, Opt3, Opt4:
		return true
	}
	return false
}

// Option is a single (key, text) answer choice.
type Option struct {
	Key  OptionKey `json:"key"`
	Text string    `json:"text"`
}

// Question is one multiple-choice item as fetched at join time.
// Options are never reordered after the fetch.
type Question struct {
	Index             int       `json:"index"`
	Prompt            string    `json:"prompt"`
	Options           [4]Option `json:"options"`
	CorrectKeyEncoded string    `json:"-"`
}

// OptionText returns the text stored under key, if the key exists.
func (q Question) OptionText(key OptionKey) (string, bool) {
	for _, o := range q.Options {
		if o.Key == key {
			return o.Text, true
		}
	}
	return "", false
}

// HasOptionText reports whether text is one of the question's option texts.
func (q Question) HasOptionText(text string) bool {
	for _, o := range q.Options {
		if o.Text == text {
			return true
		}
	}
	return false
}
