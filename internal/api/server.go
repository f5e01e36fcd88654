// Package api exposes the HTTP interface for the curator service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/archive"
	"github.com/mstanton/curator/internal/collection"
	"github.com/mstanton/curator/internal/persist"
	"github.com/mstanton/curator/internal/runner"
	"github.com/mstanton/curator/internal/store"
)

// Runners holds the two batch run instantiations by their route name.
type Runners struct {
	Enrichment   *runner.Runner
	Reachability *runner.Runner
}

// Server wires HTTP handlers to the store, runners, and archiver.
type Server struct {
	router   chi.Router
	store    *store.Store
	backend  *persist.Backend
	archiver *archive.Archiver
	runners  Runners
	idGen    collection.IDGenerator
	registry *prometheus.Registry
	logger   *zap.Logger

	// runCtx outlives individual requests so a started run is not killed
	// when the request that started it returns.
	runCtx context.Context
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runCtx context.Context,
	st *store.Store,
	backend *persist.Backend,
	archiver *archive.Archiver,
	runners Runners,
	idGen collection.IDGenerator,
	registry *prometheus.Registry,
	requestTimeout time.Duration,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	s := &Server{
		store:    st,
		backend:  backend,
		archiver: archiver,
		runners:  runners,
		idGen:    idGen,
		registry: registry,
		logger:   logger,
		runCtx:   runCtx,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.listItems)
			r.Post("/", s.createItem)
			r.Route("/{item_id}", func(r chi.Router) {
				r.Get("/", s.getItem)
				r.Put("/", s.updateItem)
				r.Delete("/", s.deleteItem)
			})
		})
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.listCategories)
			r.Post("/", s.createCategory)
			r.Put("/{category_id}", s.updateCategory)
			r.Delete("/{category_id}", s.deleteCategory)
		})
		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.listTags)
			r.Post("/", s.createTag)
			r.Put("/{tag_id}", s.updateTag)
			r.Delete("/{tag_id}", s.deleteTag)
		})
		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", s.listPreferences)
			r.Get("/{key}", s.getPreference)
			r.Put("/{key}", s.setPreference)
		})
		r.Route("/runs/{run_kind}", func(r chi.Router) {
			r.Post("/start", s.startRun)
			r.Post("/pause", s.pauseRun)
			r.Post("/cancel", s.cancelRun)
			r.Get("/status", s.runStatus)
		})
		r.Route("/archive", func(r chi.Router) {
			r.Post("/export", s.exportArchive)
			r.Post("/import", s.importArchive)
		})
		r.Put("/storage/location", s.relocateStorage)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) metricsHandler() http.Handler {
	if s.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The store loads fully at startup, so reaching this handler means the
	// collection is in memory and serving.
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

// runnerFor maps the route segment to the matching runner.
func (s *Server) runnerFor(name string) (*runner.Runner, bool) {
	switch name {
	case "enrichment":
		return s.runners.Enrichment, s.runners.Enrichment != nil
	case "reachability":
		return s.runners.Reachability, s.runners.Reachability != nil
	default:
		return nil, false
	}
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
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}

// storeErrorStatus maps the store's sentinel errors onto HTTP statuses.
func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, collection.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, collection.ErrDuplicateID),
		errors.Is(err, collection.ErrDuplicateURL),
		errors.Is(err, collection.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, collection.ErrSystemCategory):
		return http.StatusForbidden
	case errors.Is(err, collection.ErrUnknownCategory):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
