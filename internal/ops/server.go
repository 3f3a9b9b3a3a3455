package ops

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gocombat/internal"
)

// Server exposes liveness, readiness and pprof endpoints on a side port,
// kept off the public API surface.
type Server struct {
	logger *internal.Logger
	router *chi.Mux
	http   *http.Server
	ready  atomic.Bool
}

// NewServer builds the ops server for the given port
func NewServer(port string, logger *internal.Logger) *Server {
	s := &Server{
		logger: logger.WithComponent("ops"),
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Mount("/debug", middleware.Profiler())

	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetReady flips the readiness probe once dependencies are up
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the listener stops; run it in a goroutine
func (s *Server) Start() error {
	s.logger.Info("ops endpoints listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
