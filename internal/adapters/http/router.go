package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/conversational-search/internal/config"
	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
	"github.com/kirillkom/conversational-search/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

type RouterOptions struct {
	Service string
	Metrics *metrics.HTTPServerMetrics
	// Ready reports collaborator health on /readyz; nil always reports ready.
	Ready func(context.Context) error
}

type Router struct {
	cfg      config.Config
	sessions ports.SessionService
	opts     RouterOptions
}

func NewRouter(cfg config.Config, sessions ports.SessionService, opts RouterOptions) *Router {
	if opts.Service == "" {
		opts.Service = "cqr-api"
	}
	return &Router{
		cfg:      cfg,
		sessions: sessions,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/sessions", rt.startSession)
	api.HandleFunc("GET /v1/sessions/{id}", rt.getSession)
	api.HandleFunc("DELETE /v1/sessions/{id}", rt.endSession)
	api.HandleFunc("POST /v1/sessions/{id}/turns", rt.retrieveTurn)

	var limited http.Handler = api
	limited = backpressureMiddleware(limited, rt.cfg.APIMaxInFlight, backpressureWait(rt.cfg))
	limited = rateLimitMiddleware(limited, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
	}
	mux.Handle("/v1/", limited)

	var handler http.Handler = mux
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Ready != nil {
		if err := rt.opts.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	info, err := rt.sessions.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordSessionStarted(rt.opts.Service)
	}
	writeJSON(w, http.StatusCreated, info)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	info, err := rt.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (rt *Router) endSession(w http.ResponseWriter, r *http.Request) {
	info, err := rt.sessions.End(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordSessionFinished(rt.opts.Service, "ended")
	}
	writeJSON(w, http.StatusOK, info)
}

type turnRequest struct {
	Utterance string `json:"utterance"`
}

type turnResponse struct {
	SessionID string `json:"session_id"`
	*domain.Retrieval
}

func (rt *Router) retrieveTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Utterance) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "utterance is required"})
		return
	}

	sessionID := r.PathValue("id")
	result, err := rt.sessions.Retrieve(r.Context(), sessionID, req.Utterance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{SessionID: sessionID, Retrieval: result})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
