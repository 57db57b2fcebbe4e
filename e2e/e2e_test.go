package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/handcount/internal/app"
	"github.com/ayusman/handcount/internal/capture"
	"github.com/ayusman/handcount/internal/detector"
	"github.com/ayusman/handcount/internal/geometry"
	"github.com/ayusman/handcount/internal/server"
)

// startStack serves a full application backed by a looping mock camera.
func startStack(t *testing.T, d detector.Detector, initErr error) (*httptest.Server, *app.App) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	mats := make([]*gocv.Mat, 3)
	for i := range mats {
		m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		mats[i] = &m
	}

	cfg := app.DefaultConfig()
	cfg.NewCamera = func(capture.Config) capture.Camera {
		cam := capture.NewMockCamera(mats, true)
		cam.SetDelay(5 * time.Millisecond)
		return cam
	}
	cfg.NewDetector = func(detector.Config) (detector.Detector, error) {
		if initErr != nil {
			return nil, initErr
		}
		return d, nil
	}

	a := app.New(cfg)
	ts := httptest.NewServer(server.New(server.Config{Pipeline: a}))
	t.Cleanup(func() {
		ts.Close()
		a.Close()
		for _, m := range mats {
			m.Close()
		}
	})
	return ts, a
}

func getStats(t *testing.T, ts *httptest.Server) map[string]interface{} {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats error = %v", err)
	}
	defer resp.Body.Close()

	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	return stats
}

// openStream opens /video_feed and returns a reader over its JPEG parts.
func openStream(t *testing.T, ts *httptest.Server) (*multipart.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/video_feed", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("GET /video_feed error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" {
		cancel()
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if params["boundary"] != "frame" {
		t.Errorf("boundary = %q, want frame", params["boundary"])
	}
	return multipart.NewReader(resp.Body, params["boundary"]), cancel
}

func readJPEG(t *testing.T, mr *multipart.Reader) []byte {
	t.Helper()
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("next part: %v", err)
	}
	if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("part Content-Type = %q, want image/jpeg", ct)
	}
	data, err := io.ReadAll(part)
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatalf("part is not a JPEG (%d bytes)", len(data))
	}
	return data
}

func dialHands(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/hands"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial hands feed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello map[string]interface{}
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	return conn
}

func waitStreams(t *testing.T, ts *httptest.Server, want float64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if got := getStats(t, ts)["active_streams"]; got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("active_streams never reached %v", want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestE2E_TrackedStream(t *testing.T) {
	mock := detector.NewMockDetector()
	// Raw provider label; the mirrored view shows a right hand.
	mock.SetHands([]detector.HandLandmarks{detector.OpenHandLandmarks(detector.Left)})

	ts, _ := startStack(t, mock, nil)

	t.Run("StatsBeforeStreaming", func(t *testing.T) {
		stats := getStats(t, ts)
		if stats["status"] != "active" {
			t.Errorf("status = %v, want active", stats["status"])
		}
		if stats["mediapipe_ready"] != true {
			t.Errorf("mediapipe_ready = %v, want true", stats["mediapipe_ready"])
		}
		if stats["active_streams"] != float64(0) {
			t.Errorf("active_streams = %v, want 0", stats["active_streams"])
		}
	})

	conn := dialHands(t, ts)
	mr, cancel := openStream(t, ts)

	t.Run("StreamsJPEGParts", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			readJPEG(t, mr)
		}
		if got := getStats(t, ts)["active_streams"]; got != float64(1) {
			t.Errorf("active_streams = %v, want 1", got)
		}
	})

	t.Run("PublishesResolvedHands", func(t *testing.T) {
		var s geometry.Summary
		if err := conn.ReadJSON(&s); err != nil {
			t.Fatalf("read summary: %v", err)
		}
		if len(s.Hands) != 1 {
			t.Fatalf("hands = %d, want 1", len(s.Hands))
		}
		h := s.Hands[0]
		if h.Handedness != detector.Right {
			t.Errorf("handedness = %s, want %s", h.Handedness, detector.Right)
		}
		if h.Fingers != 5 || s.TotalFingers != 5 {
			t.Errorf("fingers = %d (total %d), want 5", h.Fingers, s.TotalFingers)
		}
		if s.Width != 640 || s.Height != 480 {
			t.Errorf("frame size = %dx%d, want 640x480", s.Width, s.Height)
		}
		if h.Box.Width <= 0 || h.Box.Height <= 0 {
			t.Errorf("box %+v should have an area", h.Box)
		}
	})

	t.Run("StreamEndsWithClient", func(t *testing.T) {
		cancel()
		waitStreams(t, ts, 0)
	})
}

func TestE2E_PassthroughWithoutProvider(t *testing.T) {
	ts, _ := startStack(t, nil, errors.New("python not found"))

	if got := getStats(t, ts)["mediapipe_ready"]; got != false {
		t.Errorf("mediapipe_ready = %v, want false", got)
	}

	conn := dialHands(t, ts)
	mr, cancel := openStream(t, ts)
	defer cancel()

	readJPEG(t, mr)
	readJPEG(t, mr)

	var s geometry.Summary
	if err := conn.ReadJSON(&s); err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if len(s.Hands) != 0 || s.TotalFingers != 0 {
		t.Errorf("summary = %+v, want no hands", s)
	}
}
