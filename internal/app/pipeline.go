package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handcount/internal/annotate"
	"github.com/ayusman/handcount/internal/capture"
	"github.com/ayusman/handcount/internal/detector"
	"github.com/ayusman/handcount/internal/geometry"
)

// detectLogInterval is how often repeated detection failures are logged.
const detectLogInterval = 100

// Stream runs one connection's generation loop. It pulls frames from the
// shared camera at the device's own rate, processes and encodes each one
// and hands the JPEG bytes to emit.
//
// Stream returns when ctx is done, when emit fails (the client went away)
// or when the camera yields no frame. It never reconnects the camera.
func (a *App) Stream(ctx context.Context, emit func(jpeg []byte) error) error {
	camera, err := a.Camera()
	if err != nil {
		return err
	}

	a.streams.Add(1)
	defer a.streams.Add(-1)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := camera.ReadFrame(ctx)
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		a.ProcessFrame(frame)
		buf, err := a.Encode(frame)
		frame.Close()
		if err != nil {
			log.Printf("Error encoding frame: %v", err)
			continue
		}

		if err := emit(buf); err != nil {
			return err
		}
	}
}

// ProcessFrame runs the per-frame pipeline on a BGR camera frame in place:
// mirror, detect, resolve and annotate. The Summary is also delivered to
// subscribers. A frame that could not be mirrored is not sent to the
// provider and gets no hands.
func (a *App) ProcessFrame(frame *gocv.Mat) geometry.Summary {
	var raw []detector.HandLandmarks
	if err := capture.Mirror(frame); err != nil {
		a.detectFailed(err)
	} else {
		raw = a.detect(frame)
	}

	width, height := frame.Cols(), frame.Rows()
	hands := geometry.ResolveAll(raw, width, height)

	annotate.Frame(frame, hands)

	summary := geometry.NewSummary(hands, width, height, time.Now().UnixMilli())
	a.publish(summary)
	return summary
}

// detect hands the mirrored frame to the provider as RGB. Any failure,
// including a panic inside the provider, yields no hands.
func (a *App) detect(frame *gocv.Mat) (hands []detector.HandLandmarks) {
	if a.detector == nil {
		return nil
	}

	rgb, err := capture.ToRGB(frame)
	defer rgb.Close()
	if err != nil {
		a.detectFailed(err)
		return nil
	}

	a.detectMu.Lock()
	defer a.detectMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			a.detectFailed(fmt.Errorf("provider panic: %v", r))
			hands = nil
		}
	}()

	hands, err = a.detector.Detect(&rgb)
	if err != nil {
		a.detectFailed(err)
		return nil
	}
	return hands
}

func (a *App) detectFailed(err error) {
	n := a.detectFailures.Add(1)
	if n == 1 || n%detectLogInterval == 0 {
		log.Printf("Error detecting hands (%d failures so far): %v", n, err)
	}
}

// DetectFailures returns how many frames fell back to zero hands because
// the provider failed.
func (a *App) DetectFailures() int64 {
	return a.detectFailures.Load()
}

// Encode compresses an annotated frame as JPEG at the configured quality.
func (a *App) Encode(frame *gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, a.config.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close.
	return append([]byte(nil), buf.GetBytes()...), nil
}
