// Package api exposes the HTTP interface for the courier service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/metrics"
	"github.com/rashadk/media-courier/internal/pipeline"
)

// Orchestrator is the slice of the pipeline coordinator the HTTP layer
// needs. Runs are long-lived, so handlers accept work and return 202
// rather than blocking the connection for the duration of a run.
type Orchestrator interface {
	Run(ctx context.Context, req pipeline.Request) error
	Cancel(requester string) bool
	Stats() *pipeline.Stats
	Moderation() *pipeline.Moderation
	Tasks() *pipeline.ActiveTasks
}

// Server wires HTTP handlers to the pipeline coordinator.
type Server struct {
	router  chi.Router
	orch    Orchestrator
	logger  *zap.Logger
	baseCtx context.Context
	workDir string
}

// NewServer constructs a Server with middleware and routes. baseCtx
// bounds the lifetime of accepted runs; it should be the application
// shutdown context, not a per-request one. workDir is the artifact
// storage area reported by the stats endpoint.
func NewServer(baseCtx context.Context, orch Orchestrator, workDir string, logger *zap.Logger) *Server {
	s := &Server{
		orch:    orch,
		logger:  logger,
		baseCtx: baseCtx,
		workDir: workDir,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", s.submitRequest)
			r.Post("/{requester}/cancel", s.cancelRequest)
		})
		r.Get("/stats", s.getStats)
		r.Route("/moderation", func(r chi.Router) {
			r.Put("/ban/{requester}", s.ban)
			r.Delete("/ban/{requester}", s.unban)
			r.Put("/mute/{requester}", s.mute)
			r.Delete("/mute/{requester}", s.unmute)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRequestBody struct {
	SourceURL   string           `json:"source_url"`
	Requester   string           `json:"requester"`
	Destination string           `json:"destination"`
	Options     pipeline.Options `json:"options"`
}

func (s *Server) submitRequest(w http.ResponseWriter, r *http.Request) {
	var body submitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Requester == "" || body.Destination == "" {
		writeError(w, http.StatusBadRequest, "requester and destination required")
		return
	}
	req := pipeline.Request{
		SourceURL:   body.SourceURL,
		Requester:   body.Requester,
		Destination: body.Destination,
		Options:     body.Options,
	}
	if err := pipeline.ValidateSource(req.SourceURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.orch.Moderation().IsBanned(req.Requester) {
		writeError(w, http.StatusForbidden, "requester is banned")
		return
	}
	if s.orch.Tasks().Has(req.Requester) {
		writeError(w, http.StatusConflict, pipeline.ErrRequesterBusy.Error())
		return
	}

	// The run outlives this request; bind it to the app context.
	go func() {
		if err := s.orch.Run(s.baseCtx, req); err != nil {
			s.logger.Warn("run finished with error",
				zap.String("requester", req.Requester),
				zap.String("source_url", req.SourceURL),
				zap.Error(err),
			)
		}
	}()
	// The requester identity doubles as the cancellation key.
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"requester": req.Requester,
	})
}

func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	requester := chi.URLParam(r, "requester")
	if !s.orch.Cancel(requester) {
		writeError(w, http.StatusNotFound, "no active run for requester")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"requester": requester,
		"status":    "cancelling",
	})
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	completed, failed := s.orch.Stats().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"completed":  completed,
		"failed":     failed,
		"active":     s.orch.Tasks().Len(),
		"banned":     s.orch.Moderation().BannedCount(),
		"disk_bytes": dirSize(s.workDir),
	})
}

// dirSize totals the regular files under dir; a missing dir counts as
// empty so stats work before the first run.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func (s *Server) ban(w http.ResponseWriter, r *http.Request) {
	requester := chi.URLParam(r, "requester")
	s.orch.Moderation().Ban(requester)
	writeJSON(w, http.StatusOK, map[string]string{"requester": requester, "status": "banned"})
}

func (s *Server) unban(w http.ResponseWriter, r *http.Request) {
	requester := chi.URLParam(r, "requester")
	s.orch.Moderation().Unban(requester)
	writeJSON(w, http.StatusOK, map[string]string{"requester": requester, "status": "unbanned"})
}

func (s *Server) mute(w http.ResponseWriter, r *http.Request) {
	requester := chi.URLParam(r, "requester")
	s.orch.Moderation().Mute(requester)
	writeJSON(w, http.StatusOK, map[string]string{"requester": requester, "status": "muted"})
}

func (s *Server) unmute(w http.ResponseWriter, r *http.Request) {
	requester := chi.URLParam(r, "requester")
	s.orch.Moderation().Unmute(requester)
	writeJSON(w, http.StatusOK, map[string]string{"requester": requester, "status": "unmuted"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
