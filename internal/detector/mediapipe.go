package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const scriptName = "hand_landmarker.py"

// closeTimeout is how long Close waits for the service to exit on its own.
const closeTimeout = 5 * time.Second

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Frames are written to the subprocess stdin as a 12-byte big-endian header
// (width, height, payload length) followed by the raw RGB pixels. Each
// frame is answered by exactly one JSON line on stdout.
type MediaPipeDetector struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	closed bool
}

// NewMediaPipeDetector starts the landmark service and waits for it to
// report that its model is loaded. Any failure leaves no process behind.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findMediaPipeScript()
	}
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}

	pythonPath := config.PythonPath
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, scriptPath,
		"--max-hands", strconv.Itoa(config.MaxHands),
		"--min-detection", strconv.FormatFloat(config.MinConfidence, 'f', -1, 64),
		"--min-tracking", strconv.FormatFloat(config.MinTrackingConf, 'f', -1, 64),
	)
	cmd.Dir = filepath.Dir(scriptPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start landmark service: %w", err)
	}

	d := &MediaPipeDetector{
		config: config,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}

	if err := d.awaitReady(config.StartupTimeout); err != nil {
		d.kill()
		return nil, err
	}

	return d, nil
}

// awaitReady reads the handshake line the service prints once its model
// has loaded.
func (d *MediaPipeDetector) awaitReady(timeout time.Duration) error {
	line, err := roundTrip(timeout, func() (string, error) {
		return d.stdout.ReadString('\n')
	})
	if errors.Is(err, errTimedOut) {
		return fmt.Errorf("landmark service did not start within %s", timeout)
	}
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}

	var hs struct {
		Ready bool   `json:"ready"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &hs); err != nil {
		return fmt.Errorf("parse handshake: %w", err)
	}
	if !hs.Ready {
		if hs.Error != "" {
			return fmt.Errorf("%w: %s", ErrNotReady, hs.Error)
		}
		return ErrNotReady
	}
	return nil
}

// Detect analyzes an RGB frame and returns detected hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("unsupported frame type %v", frame.Type())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrNotReady
	}

	data := frame.ToBytes()

	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:4], uint32(frame.Cols()))
	binary.BigEndian.PutUint32(header[4:8], uint32(frame.Rows()))
	binary.BigEndian.PutUint32(header[8:12], uint32(len(data)))

	line, err := roundTrip(d.config.ReplyTimeout, func() (string, error) {
		if _, err := d.stdin.Write(header); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		if _, err := d.stdin.Write(data); err != nil {
			return "", fmt.Errorf("write data: %w", err)
		}
		line, err := d.stdout.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return line, nil
	})
	if errors.Is(err, errTimedOut) {
		// A hung service is never asked again; later frames pass through.
		d.kill()
		return nil, fmt.Errorf("%w: no reply within %s", ErrNotReady, d.config.ReplyTimeout)
	}
	if err != nil {
		return nil, err
	}

	return parseResponse([]byte(line))
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	// Closing stdin is the service's signal to exit.
	d.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(closeTimeout):
		d.cmd.Process.Kill()
		<-done
		return fmt.Errorf("landmark service did not exit within %s, killed", closeTimeout)
	}
}

func (d *MediaPipeDetector) kill() {
	d.stdin.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	d.closed = true
}

var errTimedOut = errors.New("timed out")

// roundTrip runs one exchange with the service and gives up after timeout,
// returning errTimedOut. The exchange keeps running until the process is
// killed. A zero timeout waits for the exchange to finish.
func roundTrip(timeout time.Duration, exchange func() (string, error)) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := exchange()
		ch <- result{line: line, err: err}
	}()

	if timeout <= 0 {
		r := <-ch
		return r.line, r.err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-t.C:
		return "", errTimedOut
	}
}

// parseResponse decodes one reply line from the landmark service.
func parseResponse(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("landmark service: %s", response.Error)
	}

	result := make([]HandLandmarks, 0, len(response.Hands))
	for _, h := range response.Hands {
		if len(h.Points) != NumLandmarks {
			return nil, fmt.Errorf("hand has %d landmarks, want %d", len(h.Points), NumLandmarks)
		}
		result = append(result, h.toHandLandmarks())
	}

	return result, nil
}

func findMediaPipeScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(os.Getenv("HOME"), ".handcount", "scripts", scriptName),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
// It checks for venv/bin/python relative to the project directory.
func findVenvPython() string {
	// Get executable directory to find project root
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handcount/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	copy(lm.Points[:], h.Points)
	return lm
}
