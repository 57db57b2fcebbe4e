// Package app holds the application context shared by every request: the
// camera, the landmark provider and the per-frame result fan-out.
package app

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ayusman/handcount/internal/capture"
	"github.com/ayusman/handcount/internal/detector"
	"github.com/ayusman/handcount/internal/geometry"
)

// DefaultJPEGQuality is the encoder quality of streamed frames.
const DefaultJPEGQuality = 90

// subscriberBuffer is how many summaries a slow subscriber may lag behind
// before frames are dropped for it.
const subscriberBuffer = 4

// Config holds configuration options for the application.
type Config struct {
	Camera   capture.Config
	Detector detector.Config

	// JPEGQuality is the encoder quality (1-100) of streamed frames.
	JPEGQuality int

	// NewCamera builds the camera on first use. Defaults to capture.NewCamera.
	NewCamera func(capture.Config) capture.Camera

	// NewDetector builds the landmark provider at startup. Defaults to the
	// MediaPipe subprocess provider.
	NewDetector func(detector.Config) (detector.Detector, error)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Camera:      capture.DefaultConfig(),
		Detector:    detector.DefaultConfig(),
		JPEGQuality: DefaultJPEGQuality,
	}
}

// App is the main application that turns camera frames into annotated
// JPEG streams.
type App struct {
	config Config

	cameraMu sync.Mutex
	camera   capture.Camera

	// detectMu serializes provider calls across streaming connections.
	detectMu sync.Mutex
	detector detector.Detector

	subMu       sync.Mutex
	subscribers map[chan geometry.Summary]struct{}

	streams        atomic.Int32
	detectFailures atomic.Int64
}

// New creates the App and initializes the landmark provider once. When the
// provider cannot start the App runs in passthrough mode: frames are still
// streamed, without hands.
func New(config Config) *App {
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = DefaultJPEGQuality
	}
	if config.NewCamera == nil {
		config.NewCamera = capture.NewCamera
	}
	if config.NewDetector == nil {
		config.NewDetector = func(c detector.Config) (detector.Detector, error) {
			return detector.NewMediaPipeDetector(c)
		}
	}

	a := &App{
		config:      config,
		subscribers: make(map[chan geometry.Summary]struct{}),
	}

	d, err := config.NewDetector(config.Detector)
	switch {
	case err != nil:
		log.Printf("MediaPipe not available (%v), streaming without hand detection", err)
	case d == nil:
		log.Println("No landmark provider configured, streaming without hand detection")
	default:
		a.detector = d
		log.Println("Using MediaPipe hand detection")
	}

	return a
}

// Ready reports whether the landmark provider initialized successfully.
func (a *App) Ready() bool {
	return a.detector != nil
}

// ActiveStreams returns the number of streaming connections currently running.
func (a *App) ActiveStreams() int {
	return int(a.streams.Load())
}

// Camera returns the shared camera, opening it on first use. Later callers
// get the same open camera.
func (a *App) Camera() (capture.Camera, error) {
	a.cameraMu.Lock()
	defer a.cameraMu.Unlock()

	if a.camera == nil {
		a.camera = a.config.NewCamera(a.config.Camera)
	}
	if !a.camera.IsOpen() {
		if err := a.camera.Open(); err != nil {
			return nil, err
		}
		log.Printf("Camera %d opened", a.config.Camera.DeviceID)
	}
	return a.camera, nil
}

// Subscribe registers for the Summary of every frame processed by any
// stream. Summaries are dropped when the channel is full. The returned
// function unsubscribes and closes the channel.
func (a *App) Subscribe() (<-chan geometry.Summary, func()) {
	ch := make(chan geometry.Summary, subscriberBuffer)

	a.subMu.Lock()
	a.subscribers[ch] = struct{}{}
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subscribers, ch)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *App) publish(s geometry.Summary) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	for ch := range a.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// Close releases the landmark provider and the camera.
func (a *App) Close() error {
	var errs []error

	a.detectMu.Lock()
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.detectMu.Unlock()

	a.cameraMu.Lock()
	if a.camera != nil {
		if err := a.camera.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.cameraMu.Unlock()

	return errors.Join(errs...)
}
