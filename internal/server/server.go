// Package server provides the HTTP surface of the hand tracking stream.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/handcount/internal/geometry"
)

//go:embed static
var staticFS embed.FS

// Pipeline is the part of the application the HTTP surface drives.
type Pipeline interface {
	// Stream emits annotated JPEG frames until ctx is done, emit fails or
	// the camera is lost.
	Stream(ctx context.Context, emit func(jpeg []byte) error) error

	// Ready reports whether the landmark provider initialized.
	Ready() bool

	// ActiveStreams returns the number of open video streams.
	ActiveStreams() int

	// Subscribe delivers the Summary of every processed frame until the
	// returned function is called.
	Subscribe() (<-chan geometry.Summary, func())
}

// Config holds the server configuration.
type Config struct {
	// StaticDir overrides the embedded page when set.
	StaticDir string
	Pipeline  Pipeline
}

// Server represents the HTTP server for the application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Stream, stats and live results need the pipeline
	if s.config.Pipeline != nil {
		s.mux.Handle("/video_feed", NewStreamHandler(s.config.Pipeline))
		s.mux.HandleFunc("/stats", s.handleStats)
		s.mux.Handle("/ws/hands", NewHandsHandler(s.config.Pipeline))
	}

	var root http.FileSystem
	if s.config.StaticDir != "" {
		root = http.Dir(s.config.StaticDir)
	} else {
		sub, err := fs.Sub(staticFS, "static")
		if err != nil {
			panic(err)
		}
		root = http.FS(sub)
	}
	s.mux.Handle("/", http.FileServer(root))
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type statsResponse struct {
	Status         string `json:"status"`
	MediaPipeReady bool   `json:"mediapipe_ready"`
	ActiveStreams  int    `json:"active_streams"`
}

// handleStats handles GET requests to /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, statsResponse{
		Status:         "active",
		MediaPipeReady: s.config.Pipeline.Ready(),
		ActiveStreams:  s.config.Pipeline.ActiveStreams(),
	})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully, giving open requests up to shutdownTimeout to finish.
// Video streams end as soon as shutdown begins.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	// Streams run until their request context ends.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server")
	cancelStreams()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
