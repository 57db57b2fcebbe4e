package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
)

// Boundary separates the JPEG parts of the video stream.
const Boundary = "frame"

// StreamHandler serves annotated MJPEG frames from the pipeline.
type StreamHandler struct {
	pipeline Pipeline
}

// NewStreamHandler creates a new StreamHandler with the given pipeline.
func NewStreamHandler(p Pipeline) *StreamHandler {
	return &StreamHandler{pipeline: p}
}

// ServeHTTP streams MJPEG frames to one client until it disconnects or the
// camera is lost. Each connection runs its own generation loop.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := uuid.NewString()
	flusher, _ := w.(http.Flusher)
	started := false
	frames := 0

	log.Printf("Stream %s opened from %s", id, r.RemoteAddr)

	err := h.pipeline.Stream(r.Context(), func(jpeg []byte) error {
		if !started {
			w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+Boundary)
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			started = true
		}

		// Write MJPEG frame
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(jpeg)); err != nil {
			return err
		}
		if _, err := w.Write(jpeg); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return err
		}

		if flusher != nil {
			flusher.Flush()
		}
		frames++
		return nil
	})

	if !started && err != nil && r.Context().Err() == nil {
		// Nothing was sent yet, so the client can still get a status.
		http.Error(w, "Camera unavailable", http.StatusServiceUnavailable)
	}

	log.Printf("Stream %s closed after %d frames: %v", id, frames, err)
}
