package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePathFoldsSessionIDs(t *testing.T) {
	cases := map[string]string{
		"/v1/sessions":           "/v1/sessions",
		"/v1/sessions/abc":       "/v1/sessions/{session_id}",
		"/v1/sessions/abc/turns": "/v1/sessions/{session_id}/turns",
		"/healthz":               "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRetrievalMetricsShareHTTPRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	retrieval := NewRetrievalMetrics("api", httpMetrics.Registry())

	retrieval.ObserveTurn(10, 20*time.Millisecond, nil)
	retrieval.ObserveTurn(0, time.Millisecond, errors.New("boom"))
	retrieval.ObserveStage("search", time.Millisecond, nil)
	retrieval.RerankSkipped()

	if got := testutil.ToFloat64(retrieval.turnsTotal.WithLabelValues("api", "success")); got != 1 {
		t.Fatalf("expected one successful turn, got %v", got)
	}
	if got := testutil.ToFloat64(retrieval.rerankSkipped.WithLabelValues("api")); got != 1 {
		t.Fatalf("expected one skipped rerank, got %v", got)
	}

	rec := httptest.NewRecorder()
	httpMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "cqr_retrieval_turns_total") {
		t.Fatalf("expected retrieval metrics on http endpoint")
	}
}

func TestMiddlewareRecordsNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/sessions/xyz/turns", nil))

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodPost, "/v1/sessions/{session_id}/turns", "404"))
	if got != 1 {
		t.Fatalf("expected request counted under normalized path, got %v", got)
	}
}

func TestWorkerMetricsCountTurns(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartBatch()
	m.FinishBatch("worker", 5, 2, time.Second, nil)

	if got := testutil.ToFloat64(m.batchTurns.WithLabelValues("worker", "success")); got != 3 {
		t.Fatalf("expected 3 successful turns, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchInFlight); got != 0 {
		t.Fatalf("expected no batch in flight, got %v", got)
	}
}
