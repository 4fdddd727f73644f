package rewrite

import (
	"context"
	"testing"

	"github.com/kirillkom/conversational-search/internal/core/ports"
)

var (
	_ ports.QueryRewriter = (*Raw)(nil)
	_ ports.QueryRewriter = (*Concat)(nil)
)

func rewriteAll(t *testing.T, rw ports.QueryRewriter, utterances ...string) []string {
	t.Helper()
	out := make([]string, 0, len(utterances))
	for _, u := range utterances {
		q, err := rw.Rewrite(context.Background(), u)
		if err != nil {
			t.Fatalf("Rewrite(%q) error = %v", u, err)
		}
		out = append(out, q)
	}
	return out
}

func TestRawReturnsUtterance(t *testing.T) {
	rw := NewRaw("")
	if rw.Name() != "origin" {
		t.Fatalf("expected default name origin, got %q", rw.Name())
	}
	got := rewriteAll(t, rw, "what is throat cancer?", "is it treatable?")
	if got[1] != "is it treatable?" {
		t.Fatalf("expected raw utterance, got %q", got[1])
	}
}

func TestConcatKeepsWholeHistoryWithZeroWindow(t *testing.T) {
	rw := NewConcat("", 0)
	got := rewriteAll(t, rw, "a", "b", "c")
	want := []string{"a", "a b", "a b c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConcatWindowBoundsHistory(t *testing.T) {
	rw := NewConcat("last2", 2)
	got := rewriteAll(t, rw, "a", "b", "c", "d")
	if got[3] != "b c d" {
		t.Fatalf("expected window of two previous turns, got %q", got[3])
	}
	if rw.Name() != "last2" {
		t.Fatalf("unexpected name %q", rw.Name())
	}
}

func TestConcatResetHistoryStartsOver(t *testing.T) {
	rw := NewConcat("", 0)
	rewriteAll(t, rw, "first topic", "follow up")
	rw.ResetHistory()
	rw.ResetHistory()

	got := rewriteAll(t, rw, "new topic")
	if got[0] != "new topic" {
		t.Fatalf("expected no history after reset, got %q", got[0])
	}
}
