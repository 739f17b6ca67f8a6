// Package server provides the HTTP server for the neuropose dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/neuropose/internal/app"
	"github.com/ayusman/neuropose/internal/hub"
	"github.com/ayusman/neuropose/internal/log"
	"github.com/ayusman/neuropose/internal/server/api"
	"github.com/ayusman/neuropose/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
	Hub       *hub.Hub
	// Context bounds detection loops started over HTTP. Defaults to
	// context.Background().
	Context context.Context
}

// Server represents the HTTP server for the neuropose application.
type Server struct {
	config Config
	router *mux.Router
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Context == nil {
		config.Context = context.Background()
	}
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.Use(instrument)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Store)
		s.router.HandleFunc("/api/sessions", sessions.List).Methods(http.MethodGet)
		s.router.HandleFunc("/api/sessions/{id}", sessions.Get).Methods(http.MethodGet)
		s.router.HandleFunc("/api/sessions/{id}/events", sessions.Events).Methods(http.MethodGet)
	}

	if s.config.App != nil {
		detection := api.NewDetectionHandler(s.config.Context, s.config.App)
		s.router.HandleFunc("/api/state", detection.State).Methods(http.MethodGet)
		s.router.HandleFunc("/api/history", detection.History).Methods(http.MethodGet)
		s.router.HandleFunc("/api/status", detection.Status).Methods(http.MethodGet)
		s.router.HandleFunc("/api/detection/start", detection.Start).Methods(http.MethodPost)
		s.router.HandleFunc("/api/detection/stop", detection.Stop).Methods(http.MethodPost)
		s.router.HandleFunc("/api/detection", detection.SetEnabled).Methods(http.MethodPut)

		s.router.Handle("/api/stream", NewStreamHandler(s.config.App)).Methods(http.MethodGet)
	}

	if s.config.Hub != nil {
		s.router.Handle("/api/ws", NewStateSocket(s.config.Hub, s.config.App)).Methods(http.MethodGet)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until it fails or Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("http server listening", "addr", addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for active requests.
// WebSocket and stream connections end when the hub and App stop.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
