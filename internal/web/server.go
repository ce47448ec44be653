// Package web provides the HTTP server and handlers for the datastore API.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/civicdata/datastore/internal/config"
	mw "github.com/civicdata/datastore/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the datastore API.
type Server struct {
	service   Datastore
	registrar SourceRegistrar
	metrics   http.Handler
	cfg       config.ServerConfig
	router    *chi.Mux
	server    *http.Server
}

// NewServer creates a new Server instance. The metrics handler may be nil,
// in which case no /metrics route is registered.
func NewServer(service Datastore, registrar SourceRegistrar, metrics http.Handler, cfg config.ServerConfig) *Server {
	s := &Server{
		service:   service,
		registrar: registrar,
		metrics:   metrics,
		cfg:       cfg,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	s.router.Use(middleware.Timeout(timeout))

	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api/v1/datastore", func(r chi.Router) {
		// Import operations
		r.Post("/imports", s.handleImport)
		r.Get("/imports", s.handleListImports)
		r.Delete("/imports/{identifier}", s.handleDrop)

		// Query execution
		r.Post("/query", s.handleQuery)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
