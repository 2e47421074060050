// Package server exposes the dispatcher over HTTP for the browser console.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/klytics/sheetkit/internal/dispatch"
	"github.com/klytics/sheetkit/internal/store"
	"github.com/klytics/sheetkit/internal/table"
)

// MaxBodyBytes bounds request bodies; callers may post whole sheets.
const MaxBodyBytes = 10 << 20

const defaultRequestTimeout = 90 * time.Second

// Store is the dataset holder the handlers read and reload.
type Store interface {
	Current() *table.Dataset
	Load(ctx context.Context) (int, error)
	Info() store.Info
}

// Options tunes the HTTP layer.
type Options struct {
	// RequestTimeout bounds each request, AI calls included.
	RequestTimeout time.Duration
	// AllowOrigin is sent as Access-Control-Allow-Origin. Empty means "*".
	AllowOrigin string
	Version     string
}

// Server is the HTTP server for the admin agent.
type Server struct {
	dispatcher *dispatch.Dispatcher
	store      Store
	opts       Options
	router     *chi.Mux
	server     *http.Server
	started    time.Time
}

// NewServer creates a new Server instance.
func NewServer(d *dispatch.Dispatcher, st Store, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.AllowOrigin == "" {
		opts.AllowOrigin = "*"
	}
	s := &Server{
		dispatcher: d,
		store:      st,
		opts:       opts,
		router:     chi.NewRouter(),
		started:    time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors(s.opts.AllowOrigin))
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/ai", s.handleAI)
		r.Get("/sheet", s.handleSheet)
		r.Post("/sheet/refresh", s.handleRefresh)
	})
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	// ctx is already done; shut down on a fresh deadline.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	slog.Info("server shutting down")
	return s.server.Shutdown(shutdownCtx)
}
