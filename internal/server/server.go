// Package server provides the HTTP control and preview server for the scanner.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/codescan/internal/app"
	"github.com/ayusman/codescan/internal/scan"
	"github.com/ayusman/codescan/internal/store"
)

// Controller is the capture control surface the server drives. *app.App
// satisfies it.
type Controller interface {
	StartCapture(device int)
	StopCapture()
	ToggleCapture()
	SwitchDevice(device int)
	HandleLifecycle(ev app.Lifecycle)
	State() app.State
	Device() int
	SessionID() string
	OnResult(fn func(scan.FrameResult))
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Camera    Controller
	// StopWhenUnwatched stops capture when the last preview viewer leaves.
	StopWhenUnwatched bool
	Logger            *slog.Logger
}

// Server represents the HTTP server for the scanner.
type Server struct {
	config Config
	logger *slog.Logger
	router *mux.Router
	hub    *Hub
	start  time.Time
}

// New creates a new Server with the given configuration. When a camera
// controller is configured the server subscribes to its results.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		config: config,
		logger: logger,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		start:  time.Now(),
	}
	if config.Camera != nil {
		s.hub.TrackSession(config.Camera.SessionID)
		config.Camera.OnResult(s.hub.Publish)
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Camera != nil {
		camera := &cameraHandler{ctrl: s.config.Camera}
		r.HandleFunc("/api/camera", camera.status).Methods(http.MethodGet)
		r.HandleFunc("/api/camera/start", camera.start).Methods(http.MethodPost)
		r.HandleFunc("/api/camera/stop", camera.stop).Methods(http.MethodPost)
		r.HandleFunc("/api/camera/toggle", camera.toggle).Methods(http.MethodPost)
		r.HandleFunc("/api/camera/device", camera.switchDevice).Methods(http.MethodPut)

		stream := NewStreamHandler(s.hub, s.onUnwatched, s.logger)
		r.Handle("/api/stream", stream).Methods(http.MethodGet)
		r.HandleFunc("/api/snapshot", SnapshotHandler(s.hub)).Methods(http.MethodGet)
		r.Handle("/api/results", NewResultsHandler(s.hub, s.logger)).Methods(http.MethodGet)
	}

	if s.config.Store != nil {
		scans := &scansHandler{repo: s.config.Store.Scans()}
		r.HandleFunc("/api/scans", scans.list).Methods(http.MethodGet)
		r.HandleFunc("/api/scans", scans.deleteAll).Methods(http.MethodDelete)
		r.HandleFunc("/api/scans/{id}", scans.get).Methods(http.MethodGet)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		r.PathPrefix("/").Handler(fs).Methods(http.MethodGet, http.MethodHead)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the result hub feeding the preview stream and result feed.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) onUnwatched() {
	if !s.config.StopWhenUnwatched || s.config.Camera == nil {
		return
	}
	s.logger.Info("last preview viewer left, stopping capture")
	s.config.Camera.HandleLifecycle(app.LifecycleHidden)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then closes the
// hub so streaming clients disconnect and shuts the server down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
