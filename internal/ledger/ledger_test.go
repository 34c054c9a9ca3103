package ledger

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

func TestSelectOverwritesAndCounts(t *testing.T) {
	l := New(3)

	if !l.Select(0, "Paris") {
		t.Fatalf("expected first select to change the ledger")
	}
	if l.Select(0, "Paris") {
		t.Fatalf("expected identical select to be a no-op")
	}
	if !l.Select(0, "Rome") {
		t.Fatalf("expected overwrite to change the ledger")
	}
	if got, _ := l.Answer(0); got != "Rome" {
		t.Fatalf("expected Rome, got %q", got)
	}
	if l.CompletionCount() != 1 {
		t.Fatalf("expected 1 answered, got %d", l.CompletionCount())
	}
}

func TestSelectOutOfRangeIgnored(t *testing.T) {
	l := New(2)
	if l.Select(-1, "x") || l.Select(2, "x") {
		t.Fatalf("expected out of range selects to be ignored")
	}
	if l.CompletionCount() != 0 {
		t.Fatalf("expected empty ledger")
	}
}

func TestUnansweredIndicesAscending(t *testing.T) {
	l := New(6)
	l.Select(4, "a")
	l.Select(1, "b")
	l.Select(5, "c")

	want := []int{0, 2, 3}
	if got := l.UnansweredIndices(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSnapshotOrdered(t *testing.T) {
	l := New(4)
	l.Select(3, "d")
	l.Select(0, "a")
	snap := l.Snapshot()
	if len(snap) != 2 || snap[0].Index != 0 || snap[1].Index != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestFrozenLedgerIgnoresSelects(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 50).Draw(t, "total")
		l := New(total)

		pre := rapid.IntRange(0, 20).Draw(t, "pre")
		for i := 0; i < pre; i++ {
			l.Select(rapid.IntRange(0, total-1).Draw(t, "idx"), rapid.String().Draw(t, "text"))
		}
		l.Freeze()
		before := l.Snapshot()

		post := rapid.IntRange(0, 50).Draw(t, "post")
		for i := 0; i < post; i++ {
			if l.Select(rapid.IntRange(-2, total+2).Draw(t, "idx"), rapid.String().Draw(t, "text")) {
				t.Fatalf("select changed a frozen ledger")
			}
		}
		if after := l.Snapshot(); !reflect.DeepEqual(before, after) {
			t.Fatalf("frozen ledger changed: %v -> %v", before, after)
		}
	})
}
