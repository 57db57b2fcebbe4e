// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultWidth       = 1280
	DefaultHeight      = 720
	DefaultReadTimeout = 5 * time.Second
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = errors.New("failed to read frame from camera")
)

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame blocks until the next BGR frame is available, ctx is done or
	// the camera's read timeout expires. The caller is responsible for
	// closing the returned Mat.
	ReadFrame(ctx context.Context) (*gocv.Mat, error)
	IsOpen() bool
}

// Config holds camera settings. Width and Height are requested from the
// device on a best-effort basis; the frames it actually returns may differ.
type Config struct {
	DeviceID    int
	Width       int
	Height      int
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings for the default system camera.
func DefaultConfig() Config {
	return Config{
		DeviceID:    0,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		ReadTimeout: DefaultReadTimeout,
	}
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	config  Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool

	// reading holds a token while a device read is in progress. A read
	// abandoned on timeout keeps the token until the device returns.
	reading chan struct{}
}

type readResult struct {
	mat *gocv.Mat
	err error
}

// NewCamera creates a new Camera with the given configuration.
func NewCamera(config Config) Camera {
	return &cameraImpl{
		config:  config,
		reading: make(chan struct{}, 1),
	}
}

// Open opens the camera for capturing frames and requests the configured
// resolution.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.config.DeviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.config.DeviceID, err)
	}

	if c.config.Width > 0 && c.config.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources. It waits for a read
// that is still in progress on the device.
func (c *cameraImpl) Close() error {
	c.reading <- struct{}{}
	defer func() { <-c.reading }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
func (c *cameraImpl) ReadFrame(ctx context.Context) (*gocv.Mat, error) {
	if c.config.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ReadTimeout)
		defer cancel()
	}

	select {
	case c.reading <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for camera: %w", ctx.Err())
	}

	c.mu.Lock()
	capture, running := c.capture, c.running
	c.mu.Unlock()

	if !running || capture == nil {
		<-c.reading
		return nil, ErrCameraNotOpen
	}

	result := make(chan readResult, 1)
	go func() {
		defer func() { <-c.reading }()

		mat := gocv.NewMat()
		if ok := capture.Read(&mat); !ok {
			mat.Close()
			result <- readResult{err: ErrReadFailed}
			return
		}
		if mat.Empty() {
			mat.Close()
			result <- readResult{err: fmt.Errorf("%w: captured frame is empty", ErrReadFailed)}
			return
		}
		result <- readResult{mat: &mat}
	}()

	select {
	case r := <-result:
		return r.mat, r.err
	case <-ctx.Done():
		// Release the frame of the abandoned read once the device returns it.
		go func() {
			if r := <-result; r.mat != nil {
				r.mat.Close()
			}
		}()
		return nil, fmt.Errorf("read frame: %w", ctx.Err())
	}
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
