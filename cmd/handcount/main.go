package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/handcount/internal/app"
	"github.com/ayusman/handcount/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	fmt.Println("Handcount - Hand Tracking Stream")

	cfg := app.DefaultConfig()

	addr := flag.String("addr", ":5000", "HTTP listen address")
	staticDir := flag.String("static", "", "serve the page from this directory instead of the embedded one")
	flag.IntVar(&cfg.Camera.DeviceID, "camera", cfg.Camera.DeviceID, "camera device index")
	flag.IntVar(&cfg.Camera.Width, "width", cfg.Camera.Width, "requested capture width")
	flag.IntVar(&cfg.Camera.Height, "height", cfg.Camera.Height, "requested capture height")
	flag.DurationVar(&cfg.Camera.ReadTimeout, "read-timeout", cfg.Camera.ReadTimeout, "give up on a camera read after this long")
	flag.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG quality of streamed frames (1-100)")
	flag.IntVar(&cfg.Detector.MaxHands, "max-hands", cfg.Detector.MaxHands, "maximum hands tracked per frame")
	flag.Float64Var(&cfg.Detector.MinConfidence, "min-detection", cfg.Detector.MinConfidence, "minimum hand detection confidence")
	flag.Float64Var(&cfg.Detector.MinTrackingConf, "min-tracking", cfg.Detector.MinTrackingConf, "minimum hand tracking confidence")
	flag.DurationVar(&cfg.Detector.ReplyTimeout, "reply-timeout", cfg.Detector.ReplyTimeout, "stop hand detection when the MediaPipe helper takes longer than this on a frame")
	flag.StringVar(&cfg.Detector.PythonPath, "python", cfg.Detector.PythonPath, "python interpreter for the MediaPipe helper")
	flag.StringVar(&cfg.Detector.ScriptPath, "script", cfg.Detector.ScriptPath, "path to hand_landmarker.py")
	flag.Parse()

	if *staticDir != "" {
		abs, err := filepath.Abs(*staticDir)
		if err != nil {
			log.Fatalf("Invalid static directory: %v", err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			log.Fatalf("Static directory %s does not exist", abs)
		}
		*staticDir = abs
		fmt.Printf("Serving static files from: %s\n", abs)
	}

	a := app.New(cfg)
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	srv := server.New(server.Config{
		StaticDir: *staticDir,
		Pipeline:  a,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting server on %s\n", *addr)
	if err := srv.ListenAndServe(ctx, *addr, shutdownTimeout); err != nil {
		log.Printf("Server failed: %v", err)
		return
	}
	log.Println("Server stopped")
}
