// Package api serves the retrieval engine over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bjornefisk/StudyTutor/internal/async"
	"github.com/bjornefisk/StudyTutor/internal/search"
	"github.com/bjornefisk/StudyTutor/internal/telemetry"
)

// Engine is the retrieval surface the API needs. *search.Engine satisfies it.
type Engine interface {
	Retrieve(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	RetrieveWithKnowledge(ctx context.Context, query string, opts search.Options) (*search.Answer, error)
	Status() search.Status
}

// Config configures a Router.
type Config struct {
	// Defaults are applied to fields a request leaves unset.
	Defaults search.Options
	// Metrics is optional; when set, /metrics and /v1/stats are served and
	// requests are counted.
	Metrics *telemetry.Metrics
	// Loader is optional; when set, /v1/status reports the background load.
	Loader *async.Loader
	Logger *slog.Logger
}

// Router holds the HTTP handlers.
type Router struct {
	engine   Engine
	defaults search.Options
	metrics  *telemetry.Metrics
	loader   *async.Loader
	logger   *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(engine Engine, cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		engine:   engine,
		defaults: cfg.Defaults,
		metrics:  cfg.Metrics,
		loader:   cfg.Loader,
		logger:   logger,
	}
}

// Handler returns the routed handler wrapped in logging and metrics
// middleware.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", rt.root)
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/status", rt.status)
	mux.HandleFunc("POST /v1/retrieve", rt.retrieve)
	mux.HandleFunc("GET /v1/stats", rt.stats)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var h http.Handler = mux
	if rt.metrics != nil {
		h = rt.metrics.Middleware(h)
	}
	return rt.loggingMiddleware(h)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type requestIDKey struct{}

func (rt *Router) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID)))

		rt.logger.Debug("http request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
