// Package api provides the HTTP surface for CartRescue.
//
// It exposes the authenticated trigger endpoint for recovery sweeps, the run
// history, and a health check. The pipeline itself is injected; the server
// owns no pipeline state.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/CartRescue/internal/pipeline"
	"github.com/BTreeMap/CartRescue/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Default server configuration constants
const (
	// DefaultAddr is the default API listen address.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultRunsLimit is the default page size for GET /recovery/runs.
	DefaultRunsLimit = 20
)

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address.
	Addr string
	// TriggerSecret is the shared bearer secret for the trigger endpoint.
	// Empty means the endpoint is unauthenticated.
	TriggerSecret string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithTriggerSecret sets the shared secret required on the trigger endpoint.
func WithTriggerSecret(secret string) Option {
	return func(o *Opts) {
		o.TriggerSecret = secret
	}
}

// Server wires the pipeline and store behind HTTP handlers.
type Server struct {
	st     store.CartStore
	pipe   *pipeline.Pipeline
	addr   string
	secret string
}

// NewServer creates an API server with explicit dependencies.
func NewServer(st store.CartStore, pipe *pipeline.Pipeline, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{st: st, pipe: pipe, addr: cfg.Addr, secret: cfg.TriggerSecret}
}

// Router builds the HTTP routes. Exposed separately from Run for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/recovery/run", s.requireTriggerSecret(s.runHandler))
	r.Get("/recovery/runs", s.runsHandler)
	r.Get("/health", s.healthHandler)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requireTriggerSecret enforces the shared-secret bearer token on the trigger
// endpoint. With no secret configured the endpoint is open; with one
// configured, a missing or mismatched token is rejected before any work.
func (s *Server) requireTriggerSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next(w, r)
			return
		}
		const bearerPrefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, bearerPrefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, bearerPrefix)), []byte(s.secret)) != 1 {
			slog.Warn("Server.requireTriggerSecret: unauthorized trigger attempt", "path", r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
