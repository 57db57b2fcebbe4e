package detector

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ErrNotReady is returned by providers whose backing model is not available.
var ErrNotReady = errors.New("landmark provider is not ready")

// Detector defines the interface for hand landmark providers.
//
// Implementations are not required to be safe for concurrent use; callers
// that share one Detector between goroutines must serialize Detect.
type Detector interface {
	// Detect analyzes an RGB frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// PythonPath is the interpreter used to run the landmark service.
	// Empty means a virtual environment interpreter if one is found, else python3.
	PythonPath string

	// ScriptPath is the landmark service script. Empty means search the
	// usual locations.
	ScriptPath string

	// StartupTimeout bounds how long the service may take to load its model.
	StartupTimeout time.Duration

	// ReplyTimeout bounds one frame round trip. A service that misses it is
	// stopped and the detector stays unavailable.
	ReplyTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.7,
		MinTrackingConf: 0.5,
		StartupTimeout:  60 * time.Second,
		ReplyTimeout:    2 * time.Second,
	}
}
