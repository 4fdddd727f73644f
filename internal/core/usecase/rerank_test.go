package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kirillkom/conversational-search/internal/core/domain"
)

func TestRerankAdapterOrdersByScore(t *testing.T) {
	reranker := &fakeReranker{scores: map[string]float64{"text:X": 0.1, "text:Y": 0.9}}
	adapter := NewRerankAdapter(reranker, fakeLookup{}, nil, nil)

	out, err := adapter.Rerank(context.Background(), "q", []domain.Hit{{DocID: "X", Score: 5}, {DocID: "Y", Score: 4}})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	assertOrder(t, out, "Y", "X")
	if out[0].Score != 4 {
		t.Fatalf("expected hit values unchanged, got %+v", out[0])
	}
	if len(reranker.calls) != 1 || reranker.calls[0] != "q" {
		t.Fatalf("expected one batched reranker call with query q, got %v", reranker.calls)
	}
}

func TestRerankAdapterEqualScoresKeepInputOrder(t *testing.T) {
	adapter := NewRerankAdapter(&fakeReranker{fallback: 0.5}, fakeLookup{}, nil, nil)
	hits := []domain.Hit{{DocID: "d4"}, {DocID: "d1"}, {DocID: "d3"}, {DocID: "d2"}, {DocID: "d5"}}

	out, err := adapter.Rerank(context.Background(), "q", hits)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	assertOrder(t, out, "d4", "d1", "d3", "d2", "d5")
}

func TestRerankAdapterPreservesDocSetAndInput(t *testing.T) {
	reranker := &fakeReranker{scores: map[string]float64{"text:a": 0.2, "text:b": 0.7, "text:c": 0.4, "text:d": 0.7}}
	adapter := NewRerankAdapter(reranker, fakeLookup{}, nil, nil)
	hits := []domain.Hit{{DocID: "a"}, {DocID: "b"}, {DocID: "c"}, {DocID: "d"}}

	out, err := adapter.Rerank(context.Background(), "q", hits)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	assertOrder(t, out, "b", "d", "c", "a")
	assertOrder(t, hits, "a", "b", "c", "d")
}

func TestRerankAdapterWithoutRerankerIsIdentity(t *testing.T) {
	observer := &countingObserver{}
	adapter := NewRerankAdapter(nil, nil, nil, observer)
	hits := []domain.Hit{{DocID: "b"}, {DocID: "a"}}

	out, err := adapter.Rerank(context.Background(), "q", hits)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	assertOrder(t, out, "b", "a")
	if observer.skipped != 1 {
		t.Fatalf("expected skipped rerank to be observed once, got %d", observer.skipped)
	}
}

func TestRerankAdapterEmptyInputSkipsModel(t *testing.T) {
	reranker := &fakeReranker{}
	adapter := NewRerankAdapter(reranker, fakeLookup{}, nil, nil)

	out, err := adapter.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(out) != 0 || len(reranker.calls) != 0 {
		t.Fatalf("expected no model call for empty input, got out=%v calls=%d", out, len(reranker.calls))
	}
}

func TestRerankAdapterLookupFailureReportsStage(t *testing.T) {
	errMissing := errors.New("missing passage")
	adapter := NewRerankAdapter(&fakeReranker{}, fakeLookup{err: errMissing}, nil, nil)

	_, err := adapter.Rerank(context.Background(), "q", []domain.Hit{{DocID: "a"}})
	if !errors.Is(err, errMissing) {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if stage := domain.FailedStage(err); stage != domain.StageLookup {
		t.Fatalf("expected lookup stage, got %q", stage)
	}
}

func TestRerankAdapterRejectsScoreCountMismatch(t *testing.T) {
	adapter := NewRerankAdapter(&fakeReranker{short: true}, fakeLookup{}, nil, nil)

	_, err := adapter.Rerank(context.Background(), "q", []domain.Hit{{DocID: "a"}, {DocID: "b"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if stage := domain.FailedStage(err); stage != domain.StageRerank {
		t.Fatalf("expected rerank stage, got %q", stage)
	}
}

func TestRerankAdapterSortsNaNLast(t *testing.T) {
	reranker := &fakeReranker{scores: map[string]float64{"text:a": math.NaN(), "text:b": -3}}
	adapter := NewRerankAdapter(reranker, fakeLookup{}, nil, nil)

	out, err := adapter.Rerank(context.Background(), "q", []domain.Hit{{DocID: "a"}, {DocID: "b"}})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	assertOrder(t, out, "b", "a")
}
