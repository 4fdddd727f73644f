package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/infrastructure/resilience"
)

func TestSearchQueriesNamedSparseVector(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/cast/points/query" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":17,"score":12.5,"payload":{"passage_id":"MARCO_955948"}},
			{"id":"3f2c","score":11.0,"payload":{}}
		]},"status":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "cast", Options{})
	hits, err := client.Search(context.Background(), "blue whale size", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := []domain.Hit{{DocID: "MARCO_955948", Score: 12.5}, {DocID: "3f2c", Score: 11.0}}
	if len(hits) != len(want) {
		t.Fatalf("expected %d hits, got %+v", len(want), hits)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Fatalf("hit %d: expected %+v, got %+v", i, want[i], hits[i])
		}
	}
	if captured["using"] != DefaultVectorName || captured["limit"] != float64(5) {
		t.Fatalf("unexpected query body: %v", captured)
	}
	query, _ := captured["query"].(map[string]any)
	if indices, _ := query["indices"].([]any); len(indices) != 3 {
		t.Fatalf("expected three sparse terms, got %v", query)
	}
}

func TestSearchWithoutTermsSkipsEngine(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	hits, err := New(server.URL, "cast", Options{}).Search(context.Background(), "?!", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if hits == nil || len(hits) != 0 || atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected empty hits without engine call, got %v (%d calls)", hits, calls)
	}
}

func TestSearchRetriesUnavailableEngine(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":1,"score":1,"payload":{"passage_id":"p1"}}]}}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, nil)
	hits, err := New(server.URL, "cast", Options{Executor: exec}).Search(context.Background(), "whales", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "p1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearchReportsMissingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Collection cast not found"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, "cast", Options{}).Search(context.Background(), "whales", 10)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error with body, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 404 to be permanent, got %v", err)
	}
}
