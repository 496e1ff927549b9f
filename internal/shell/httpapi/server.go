// Package httpapi exposes a read-only HTTP surface over a running stack:
// live status, run history, and a health check. It is served by the
// `devstack serve` command.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prillcode/devstack/internal/core/status"
	"github.com/prillcode/devstack/internal/shell/store"
)

// =============================================================================
// Server
// =============================================================================

// StatusSource reports the current state of a stack. Implemented by the
// orchestrator.
type StatusSource interface {
	Status(ctx context.Context, stackName string) (status.Snapshot, error)
}

// Server serves the devstack HTTP API.
type Server struct {
	stackName string
	source    StatusSource
	history   store.Store
	logger    *slog.Logger
	router    chi.Router
}

// NewServer creates the API server. The history store may be nil, in which
// case history endpoints return 404.
func NewServer(stackName string, source StatusSource, history store.Store, logger *slog.Logger) *Server {
	s := &Server{
		stackName: stackName,
		source:    source,
		history:   history,
		logger:    logger.With("component", "httpapi"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler for mounting or serving.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/history/{id}", s.handleHistoryRun)
	})
	return r
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).Round(time.Microsecond),
		)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.source.Status(r.Context(), s.stackName)
	if err != nil {
		s.logger.Error("status lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query stack status")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}

	opts := store.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}

	runs, err := s.history.ListRuns(r.Context(), s.stackName, opts)
	if err != nil {
		s.logger.Error("history lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query run history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("history lookup failed", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query run history")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// Response Helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
