// Package scoring resolves correct-option keys and scores a ledger against them.
//
// Correct keys arrive either plain ("opt3") or obfuscated with a static
// secret embedded in the client. The obfuscation offers no real secrecy:
// it is reproduced for compatibility and should be treated as a known weakness.
package scoring

import (
	"fmt"

	"github.com/stemsi/exstem-player/internal/ledger"
	"github.com/stemsi/exstem-player/internal/model"
)

// Resolver turns a question's encoded correct key into a plain option key.
type Resolver struct {
	codec *Codec
}

// NewResolver creates a Resolver. A nil codec falls back to DefaultCodec.
func NewResolver(codec *Codec) *Resolver {
	if codec == nil {
		codec = DefaultCodec()
	}
	return &Resolver{codec: codec}
}

// ResolveCorrectKey returns the plain key for q. Plain keys are returned
// unchanged; anything else is decoded. Decoding twice yields the same key.
func (r *Resolver) ResolveCorrectKey(q model.Question) (model.OptionKey, error) {
	if model.IsOptionKey(q.CorrectKeyEncoded) {
		return model.OptionKey(q.CorrectKeyEncoded), nil
	}
	key, err := r.codec.Decode(q.CorrectKeyEncoded)
	if err != nil {
		return "", fmt.Errorf("question %d: %w", q.Index, err)
	}
	return key, nil
}

// Result is the outcome of Score.
type Result struct {
	Correct int
	// Total is always the number of questions, answered or not.
	Total int
	// Unresolved lists questions whose correct key could not be decoded.
	// They count as incorrect.
	Unresolved []int
}

// Score counts the questions whose recorded text equals the text of the
// resolved correct option. Unanswered questions count as incorrect.
func (r *Resolver) Score(questions []model.Question, answers *ledger.Ledger) Result {
	res := Result{Total: len(questions)}
	for _, q := range questions {
		correctText, ok := r.correctText(q)
		if !ok {
			res.Unresolved = append(res.Unresolved, q.Index)
			continue
		}
		if got, answered := answers.Answer(q.Index); answered && got == correctText {
			res.Correct++
		}
	}
	return res
}

// Review reports, per question, what was selected and what was correct.
func (r *Resolver) Review(questions []model.Question, answers *ledger.Ledger) []model.QuestionReview {
	out := make([]model.QuestionReview, 0, len(questions))
	for _, q := range questions {
		rv := model.QuestionReview{Index: q.Index}
		selected, answered := answers.Answer(q.Index)
		rv.Selected = selected
		if text, ok := r.correctText(q); ok {
			rv.Resolved = true
			rv.CorrectText = text
			rv.Correct = answered && selected == text
		}
		out = append(out, rv)
	}
	return out
}

func (r *Resolver) correctText(q model.Question) (string, bool) {
	key, err := r.ResolveCorrectKey(q)
	if err != nil {
		return "", false
	}
	return q.OptionText(key)
}
