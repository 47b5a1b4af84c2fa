// Color Sphere Detection
// Detects purple, red and blue spheres in a live color stream.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/sirupsen/logrus"

	"color-sphere-detection/internal/config"
	"color-sphere-detection/internal/core"
	"color-sphere-detection/internal/gui"
	imageio "color-sphere-detection/internal/io"
	"color-sphere-detection/internal/metrics"
	"color-sphere-detection/internal/server"
	"color-sphere-detection/internal/source"
)

const (
	AppName    = "Color Sphere Detection"
	AppID      = "com.example.color-sphere-detection"
	AppVersion = "1.0.0"
)

type options struct {
	configPath string
	source     string
	device     int
	input      string
	realtime   bool
	display    string
	serve      string
	snapshots  string
	parallel   bool
	debug      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML config file (defaults are used when empty)")
	flag.StringVar(&opts.source, "source", "camera", "Frame source: camera, video or images")
	flag.IntVar(&opts.device, "device", 0, "Camera device index")
	flag.StringVar(&opts.input, "input", "", "Video file/URL, or comma separated image files and directories")
	flag.BoolVar(&opts.realtime, "realtime", false, "Read video input at its native frame rate")
	flag.StringVar(&opts.display, "display", "window", "Display: window, viewer or none")
	flag.StringVar(&opts.serve, "serve", "", "Serve detections over HTTP on this address, e.g. :8080")
	flag.StringVar(&opts.snapshots, "snapshots", "", "Save annotated snapshots into this directory")
	flag.BoolVar(&opts.parallel, "parallel", false, "Process color profiles concurrently")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug mode with verbose logging")
	flag.Parse()

	logger := initLogger(opts.debug)
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": opts.debug,
		"source":     opts.source,
		"display":    opts.display,
	}).Info("Starting Color Sphere Detection")

	if err := run(opts, logger); err != nil {
		logger.WithError(err).Error("Detection stopped with an error")
		os.Exit(1)
	}

	logger.Info("Application shutting down gracefully")
	os.Exit(0)
}

func run(opts options, logger *logrus.Logger) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opener, err := buildOpener(opts, cfg, logger)
	if err != nil {
		return err
	}

	pipeline, err := core.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	stats := metrics.NewStats()
	reporters := []core.Reporter{core.NewConsoleReporter(os.Stdout), stats}
	var publishers []core.FramePublisher

	if cfg.Snapshots.Dir != "" {
		writer, err := imageio.NewSnapshotWriter(cfg.Snapshots, logger)
		if err != nil {
			return err
		}
		publishers = append(publishers, writer)
	}

	if opts.serve != "" {
		srv := server.NewServer(opts.serve, pipeline.Profiles(), stats, logger)
		reporters = append(reporters, srv)
		publishers = append(publishers, srv)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.WithError(err).Warn("Web server stopped")
			}
		}()
	}

	runnerOpts := []core.RunnerOption{core.WithPublishers(publishers...)}

	switch opts.display {
	case "none":
		runner := core.NewRunner(opener, pipeline, logger, append(runnerOpts, core.WithReporters(reporters...))...)
		return runner.Run(ctx)

	case "window":
		window := gui.NewWindow(AppName, "Mask: "+cfg.DebugMaskProfile, logger)
		defer window.Close()

		runner := core.NewRunner(opener, pipeline, logger,
			append(runnerOpts, core.WithDisplay(window), core.WithReporters(reporters...))...)
		return runner.Run(ctx)

	case "viewer":
		return runViewer(ctx, stop, opener, pipeline, logger, reporters, runnerOpts)

	default:
		return fmt.Errorf("unknown display: %s", opts.display)
	}
}

// runViewer keeps the fyne event loop on the main goroutine and runs the
// detection loop beside it
func runViewer(ctx context.Context, stop context.CancelFunc, opener core.SourceOpener, pipeline *core.Pipeline,
	logger *logrus.Logger, reporters []core.Reporter, runnerOpts []core.RunnerOption) error {

	fyneApp := app.NewWithID(AppID)
	fyneApp.Settings().SetTheme(theme.DefaultTheme())

	viewer := gui.NewViewer(fyneApp, AppName, logger)
	reporters = append(reporters, viewer)

	runner := core.NewRunner(opener, pipeline, logger,
		append(runnerOpts, core.WithDisplay(viewer), core.WithReporters(reporters...))...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx)
		viewer.Quit()
	}()

	viewer.ShowAndRun()
	stop()
	return <-errCh
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}

	if opts.parallel {
		cfg.Parallel = true
	}
	if opts.snapshots != "" {
		cfg.Snapshots.Dir = opts.snapshots
	}

	return cfg, cfg.Validate()
}

func buildOpener(opts options, cfg config.Config, logger *logrus.Logger) (core.SourceOpener, error) {
	switch opts.source {
	case "camera":
		return source.CameraOpener(opts.device, cfg.Stream, logger), nil

	case "video":
		if opts.input == "" {
			return nil, errors.New("-input is required for the video source")
		}
		return source.FFmpegOpener(opts.input, source.FFmpegOptions{Realtime: opts.realtime}, logger), nil

	case "images":
		if opts.input == "" {
			return nil, errors.New("-input is required for the images source")
		}
		return source.ImagesOpener(logger, strings.Split(opts.input, ",")...), nil

	default:
		return nil, fmt.Errorf("unknown source: %s", opts.source)
	}
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
