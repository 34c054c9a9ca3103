// Package pagination splits a question sequence into fixed-size sections and
// tracks navigation between them.
package pagination

import (
	"errors"
	"fmt"
)

var ErrQuestionOutOfRange = errors.New("question index out of range")

// OutcomeKind describes what an Advance call did.
type OutcomeKind int

const (
	// Moved means the next section is now current.
	Moved OutcomeKind = iota
	// MovedWithWarning means the section was left with unanswered questions.
	MovedWithWarning
	// Confirm means the last section was completed and submission should be confirmed.
	Confirm
	// Refused means the last section was reached with unanswered questions left.
	Refused
)

func (k OutcomeKind) String() string {
	switch k {
	case Moved:
		return "moved"
	case MovedWithWarning:
		return "moved_with_warning"
	case Confirm:
		return "confirm"
	case Refused:
		return "refused"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the result of Advance. Unanswered lists indices, ascending, in
// the section that was left (MovedWithWarning) or globally (Refused).
type Outcome struct {
	Kind       OutcomeKind
	Unanswered []int
}

// Paginator is not safe for concurrent use; the session controller
// serializes access.
type Paginator struct {
	total   int
	size    int
	current int
}

// New creates a paginator. A non-positive size puts every question in one section.
func New(total, size int) *Paginator {
	if total < 0 {
		total = 0
	}
	if size <= 0 {
		size = total
		if size == 0 {
			size = 1
		}
	}
	return &Paginator{total: total, size: size}
}

// SectionCount is ceil(total / size), and at least one.
func (p *Paginator) SectionCount() int {
	if p.total == 0 {
		return 1
	}
	return (p.total + p.size - 1) / p.size
}

func (p *Paginator) Current() int { return p.current }

func (p *Paginator) Total() int { return p.total }

func (p *Paginator) IsLast() bool { return p.current == p.SectionCount()-1 }

// Bounds returns the half-open question range [start, end) of section s,
// with s clamped into range.
func (p *Paginator) Bounds(s int) (start, end int) {
	s = p.clamp(s)
	start = s * p.size
	end = start + p.size
	if end > p.total {
		end = p.total
	}
	return start, end
}

// SectionOf returns the section owning question q.
func (p *Paginator) SectionOf(q int) (int, error) {
	if q < 0 || q >= p.total {
		return 0, fmt.Errorf("%w: %d", ErrQuestionOutOfRange, q)
	}
	return q / p.size, nil
}

// Advance moves forward. Mid-session it always moves, warning when the
// current section has gaps. On the last section it asks for confirmation
// only when every question is answered, unless forced.
func (p *Paginator) Advance(force bool, answered func(int) bool) Outcome {
	if p.IsLast() {
		if force {
			return Outcome{Kind: Confirm}
		}
		missing := p.unanswered(0, p.total, answered)
		if len(missing) > 0 {
			return Outcome{Kind: Refused, Unanswered: missing}
		}
		return Outcome{Kind: Confirm}
	}

	start, end := p.Bounds(p.current)
	missing := p.unanswered(start, end, answered)
	p.current++
	if !force && len(missing) > 0 {
		return Outcome{Kind: MovedWithWarning, Unanswered: missing}
	}
	return Outcome{Kind: Moved}
}

// Back moves to the previous section. It reports false on the first section.
func (p *Paginator) Back() bool {
	if p.current == 0 {
		return false
	}
	p.current--
	return true
}

// GoTo makes section s current, clamped into range.
func (p *Paginator) GoTo(s int) int {
	p.current = p.clamp(s)
	return p.current
}

// JumpTo switches to the section that owns question q.
func (p *Paginator) JumpTo(q int) (int, error) {
	s, err := p.SectionOf(q)
	if err != nil {
		return p.current, err
	}
	p.current = s
	return s, nil
}

// SectionCompletion reports answered and total counts within section s.
func (p *Paginator) SectionCompletion(s int, answered func(int) bool) (done, size int) {
	start, end := p.Bounds(s)
	for i := start; i < end; i++ {
		if answered(i) {
			done++
		}
	}
	return done, end - start
}

func (p *Paginator) unanswered(start, end int, answered func(int) bool) []int {
	var out []int
	for i := start; i < end; i++ {
		if !answered(i) {
			out = append(out, i)
		}
	}
	return out
}

func (p *Paginator) clamp(s int) int {
	if s < 0 {
		return 0
	}
	if last := p.SectionCount() - 1; s > last {
		return last
	}
	return s
}
