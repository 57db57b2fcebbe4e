package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// splitParts splits an MJPEG body into its JPEG payloads.
func splitParts(t *testing.T, body []byte) [][]byte {
	t.Helper()

	var parts [][]byte
	for _, chunk := range bytes.Split(body, []byte("--"+Boundary+"\r\n")) {
		if len(chunk) == 0 {
			continue
		}
		header, payload, ok := bytes.Cut(chunk, []byte("\r\n\r\n"))
		if !ok {
			t.Fatalf("part without header terminator: %q", chunk)
		}
		if !bytes.Contains(header, []byte("Content-Type: image/jpeg")) {
			t.Errorf("part header %q lacks image/jpeg content type", header)
		}
		payload = bytes.TrimSuffix(payload, []byte("\r\n"))
		if !bytes.Contains(header, []byte("Content-Length: "+strconv.Itoa(len(payload)))) {
			t.Errorf("part header %q has wrong content length for %d bytes", header, len(payload))
		}
		parts = append(parts, payload)
	}
	return parts
}

func TestStreamHandler_WritesMultipart(t *testing.T) {
	frames := [][]byte{
		{0xFF, 0xD8, 0x01, 0xFF, 0xD9},
		{0xFF, 0xD8, 0x02, 0x02, 0xFF, 0xD9},
		{0xFF, 0xD8, 0x03, 0xFF, 0xD9},
	}
	p := newFakePipeline(frames...)
	p.err = errors.New("camera lost")

	req := httptest.NewRequest(http.MethodGet, "/video_feed", nil)
	rec := httptest.NewRecorder()
	New(Config{Pipeline: p}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !rec.Flushed {
		t.Error("expected frames to be flushed")
	}

	parts := splitParts(t, rec.Body.Bytes())
	if len(parts) != len(frames) {
		t.Fatalf("got %d parts, want %d", len(parts), len(frames))
	}
	for i := range frames {
		if !bytes.Equal(parts[i], frames[i]) {
			t.Errorf("part %d = %x, want %x", i, parts[i], frames[i])
		}
	}
}

func TestStreamHandler_CameraUnavailable(t *testing.T) {
	p := newFakePipeline()
	p.err = errors.New("open camera 0: device busy")

	req := httptest.NewRequest(http.MethodGet, "/video_feed", nil)
	rec := httptest.NewRecorder()
	New(Config{Pipeline: p}).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestStreamHandler_OnlyAllowsGET(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/video_feed", nil)
	rec := httptest.NewRecorder()
	New(Config{Pipeline: newFakePipeline()}).ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestStreamHandler_ClientDisconnect(t *testing.T) {
	p := newFakePipeline([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	p.block = true

	ts := httptest.NewServer(New(Config{Pipeline: p}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/video_feed", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /video_feed error = %v", err)
	}

	// First part arrives while the stream is still open.
	buf := make([]byte, 16)
	if _, err := io.ReadAtLeast(resp.Body, buf, len("--frame")); err != nil {
		t.Fatalf("read first part: %v", err)
	}
	if p.ActiveStreams() != 1 {
		t.Errorf("ActiveStreams() = %d, want 1", p.ActiveStreams())
	}

	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for p.ActiveStreams() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream loop still running after client disconnected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
