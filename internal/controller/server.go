// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"shipyard/internal/controller/handlers"
	"shipyard/internal/controller/middleware"
	"shipyard/internal/store"
)

// Options configures the tracking service.
type Options struct {
	Addr  string
	Store handlers.StoreFactory
	Queue store.Queue
	// Artifacts may be nil when no object store is configured.
	Artifacts      handlers.ArtifactReader
	InternalSecret string
	Metrics        http.Handler
	Logger         *slog.Logger
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      NewHandler(opts, log),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// NewHandler builds the routed and logged handler tree.
func NewHandler(opts Options, log *slog.Logger) http.Handler {
	h := handlers.New(opts.Store, opts.Queue, opts.Artifacts, log)

	authMW := middleware.AuthMiddleware(opts.Store)
	rateMW := middleware.NewRateLimiter().Middleware()
	internalMW := middleware.RequireInternalAuth(opts.InternalSecret)

	client := func(fn http.HandlerFunc) http.Handler {
		return authMW(rateMW(fn))
	}

	mux := http.NewServeMux()

	// Probes
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	// Public authenticated apis
	mux.Handle("POST /api/jobs", client(h.CreateJob))
	mux.Handle("GET /api/jobs", client(h.ListJobs))
	mux.Handle("GET /api/jobs/{id}", client(h.GetJob))
	mux.Handle("DELETE /api/jobs/{id}", client(h.DeleteJob))
	mux.Handle("GET /api/jobs/{id}/artifacts", client(h.ListArtifacts))
	mux.Handle("GET /api/jobs/{id}/artifacts.zip", client(h.DownloadArtifacts))
	mux.Handle("GET /api/jobs/{id}/artifacts/{name...}", client(h.GetArtifact))

	// Internal endpoints
	// These are called by workers and operators holding the shared secret.
	mux.Handle("PATCH /api/jobs/{id}/status", internalMW(http.HandlerFunc(h.UpdateJobStatus)))
	mux.Handle("POST /api/clients", internalMW(http.HandlerFunc(h.CreateClient)))

	return middleware.RequestLogger(log)(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
