package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/search"
)

// maxBodyBytes bounds the retrieve request body.
const maxBodyBytes = 1 << 20

func (rt *Router) root(w http.ResponseWriter, _ *http.Request) {
	st := rt.engine.Status()
	writeJSON(w, http.StatusOK, RootResponse{
		Status:      "ok",
		IndexLoaded: st.Ready,
		Documents:   st.Chunks,
	})
}

// healthz reports healthy when hybrid retrieval is available, degraded
// when only dense retrieval is, and 503 when no index is loaded.
func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	st := rt.engine.Status()
	resp := HealthResponse{
		Documents: st.Chunks,
		Mode:      st.Mode,
		Embedder:  st.Embedder,
		Lexical:   st.LexicalBackend,
	}
	switch st.Mode {
	case search.ModeHybrid:
		resp.Status = HealthHealthy
	case search.ModeVectorOnly:
		resp.Status = HealthDegraded
		resp.Message = st.LexicalError
	default:
		resp.Status = HealthNotReady
		resp.Message = search.NotReadyMessage
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Status: rt.engine.Status()}
	if rt.loader != nil {
		snap := rt.loader.Snapshot()
		resp.Load = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) stats(w http.ResponseWriter, _ *http.Request) {
	stats := rt.metrics.Queries()
	if stats == nil {
		writeError(w, http.StatusNotFound, "query statistics are disabled")
		return
	}
	writeJSON(w, http.StatusOK, stats.Snapshot())
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := rt.options(req)
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, errorMessage(err))
		return
	}

	resp := RetrieveResponse{Query: req.Query}
	if req.IncludeKnowledge {
		answer, err := rt.engine.RetrieveWithKnowledge(r.Context(), req.Query, opts)
		if err != nil {
			rt.writeRetrieveError(w, r, err)
			return
		}
		resp.Results = toSources(answer.Results, req.FullText)
		resp.Knowledge = toKnowledge(answer.Knowledge)
	} else {
		results, err := rt.engine.Retrieve(r.Context(), req.Query, opts)
		if err != nil {
			rt.writeRetrieveError(w, r, err)
			return
		}
		resp.Results = toSources(results, req.FullText)
	}
	resp.Mode = rt.engine.Status().Mode
	writeJSON(w, http.StatusOK, resp)
}

// options applies the request over the defaults.
func (rt *Router) options(req RetrieveRequest) search.Options {
	opts := rt.defaults
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.UseMultiQuery != nil {
		opts.UseMultiQuery = *req.UseMultiQuery
	}
	if req.NumVariations != nil {
		opts.NumVariations = *req.NumVariations
	}
	if req.UseHybrid != nil {
		opts.UseHybrid = *req.UseHybrid
	}
	return opts
}

func (rt *Router) writeRetrieveError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Warn("retrieve failed",
			slog.String("request_id", requestID(r.Context())),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	writeError(w, status, errorMessage(err))
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tterrors.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, tterrors.ErrRetrievalUnavailable):
		return http.StatusBadGateway
	case tterrors.GetCategory(err) == tterrors.CategoryValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the user-facing message without the error code.
func errorMessage(err error) string {
	if te, ok := tterrors.As(err); ok {
		return te.Message
	}
	return err.Error()
}
