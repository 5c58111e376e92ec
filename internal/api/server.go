package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/export"
	"github.com/JakeFAU/taxcrawl/internal/metrics"
	"github.com/JakeFAU/taxcrawl/internal/progress"
	"github.com/JakeFAU/taxcrawl/internal/queue"
)

// Server wires HTTP handlers to the queue store and cache.
type Server struct {
	router    chi.Router
	store     queue.Store
	snapshots cache.Cache[progress.Snapshot]
	pdfs      export.Locator
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. pdfs may be nil.
func NewServer(
	store queue.Store,
	snapshots cache.Cache[progress.Snapshot],
	pdfs export.Locator,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     store,
		snapshots: snapshots,
		pdfs:      pdfs,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/queues/{table}", func(r chi.Router) {
		r.Use(tableMiddleware)
		r.Get("/status", s.status)
		r.Get("/snapshot", s.snapshot)
		r.Get("/export.csv", s.exportCSV)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	st, err := progress.Report(r.Context(), s.store, s.snapshots, table)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if s.snapshots == nil {
		s.writeError(w, http.StatusNotFound, "no snapshot published for "+table)
		return
	}
	snap, ok, err := s.snapshots.Get(r.Context(), progress.StatusKey(table))
	if err != nil {
		s.logger.Error("read snapshot failed", zap.String("table", table), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no snapshot published for "+table)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if _, err := s.store.Counts(r.Context(), table); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+table+`.csv"`)
	if _, err := export.CSV(r.Context(), w, s.store, table, s.pdfs); err != nil {
		// Headers are already sent; the truncated body is all we can do.
		s.logger.Error("export failed", zap.String("table", table), zap.Error(err))
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrTableNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrInvalidTable):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("queue store failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "queue store failed")
	}
}

func tableMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := queue.ValidateTable(chi.URLParam(r, "table")); err != nil {
			writeJSONTo(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := writeJSONTo(w, status, payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSONTo(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
