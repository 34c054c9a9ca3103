// Package ledger records the participant's chosen option text per question.
package ledger

import (
	"sort"
	"sync"
)

// Ledger maps question index to the selected option text. Entries can be
// overwritten until Freeze is called; afterwards every Select is a no-op.
type Ledger struct {
	mu      sync.RWMutex
	total   int
	answers map[int]string
	frozen  bool
}

// New creates a ledger for a quiz with total questions.
func New(total int) *Ledger {
	return &Ledger{
		total:   total,
		answers: make(map[int]string, total),
	}
}

// Total returns the number of questions the ledger was created for.
func (l *Ledger) Total() int { return l.total }

// Select upserts the answer for index. It reports whether the ledger changed.
func (l *Ledger) Select(index int, optionText string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen || index < 0 || index >= l.total {
		return false
	}
	if prev, ok := l.answers[index]; ok && prev == optionText {
		return false
	}
	l.answers[index] = optionText
	return true
}

// Answer returns the recorded text for index.
func (l *Ledger) Answer(index int) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.answers[index]
	return v, ok
}

// IsAnswered reports whether index has an entry.
func (l *Ledger) IsAnswered(index int) bool {
	_, ok := l.Answer(index)
	return ok
}

// CompletionCount returns how many questions have an answer.
func (l *Ledger) CompletionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.answers)
}

// UnansweredIndices returns the unanswered indices in ascending order.
func (l *Ledger) UnansweredIndices() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]int, 0, l.total-len(l.answers))
	for i := 0; i < l.total; i++ {
		if _, ok := l.answers[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// Freeze makes the ledger read-only. Calling it again has no effect.
func (l *Ledger) Freeze() {
	l.mu.Lock()
	l.frozen = true
	l.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (l *Ledger) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen
}

// Entry is one (index, text) pair from Snapshot.
type Entry struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Snapshot returns a copy of all entries ordered by index.
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.answers))
	for i, v := range l.answers {
		out = append(out, Entry{Index: i, Text: v})
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
