package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/h2a-linkage/internal/etl"
	"github.com/h2a-linkage/internal/store"
	"github.com/h2a-linkage/internal/web/handlers"
	"github.com/h2a-linkage/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	pipeline   *etl.Pipeline
	store      *store.Store
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
}

// NewServer creates a new web server instance. st may be nil, which
// disables run history.
func NewServer(config *Config, pipeline *etl.Pipeline, st *store.Store) *Server {
	server := &Server{
		config:   config,
		pipeline: pipeline,
		store:    st,
	}

	// Setup routes
	server.setupRoutes()

	// Create HTTP server
	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	// Convert config for handlers (to avoid import cycle)
	handlerConfig := &handlers.Config{MaxBodyBytes: s.config.Limits.MaxBodyBytes}
	h := &handlers.PipelineHandler{Pipeline: s.pipeline, Store: s.store, Config: handlerConfig}

	// API routes
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.Allow(h.Health, "GET"))

	// Stage endpoints
	api.HandleFunc("/reconcile", handlers.Allow(h.Reconcile, "POST"))
	api.HandleFunc("/diff", handlers.Allow(h.Diff, "POST"))
	api.HandleFunc("/percentages", handlers.Allow(h.Percentages, "POST"))
	api.HandleFunc("/match", handlers.Allow(h.Match, "POST"))
	api.HandleFunc("/represent", handlers.Allow(h.Represent, "POST"))

	// Run history
	api.HandleFunc("/runs", handlers.Allow(h.ListRuns, "GET"))
	api.HandleFunc("/runs/{id}/tables/{name}", handlers.Allow(h.GetRunTable, "GET"))

	// Apply middleware
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recoverer())
	s.router.Use(middleware.RequestLogging())

	if s.config.Auth.Enabled {
		// Apply authentication middleware to API routes only
		api.Use(middleware.Authentication(s.config.Auth.APIKey))
	}

	// mux runs middleware only on matched routes, so preflight requests
	// need CORS outside the router
	s.handler = middleware.CORS(s.config.Server.Origins...)(s.router)
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) Start() error {
	// Setup graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Starting server on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	fmt.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}
