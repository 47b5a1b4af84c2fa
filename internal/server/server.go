// Package server publishes detections over HTTP and websockets
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"color-sphere-detection/internal/config"
	"color-sphere-detection/internal/core"
	"color-sphere-detection/internal/metrics"
)

// Server serves the latest detections, running statistics and the active
// profiles, and streams records and annotated JPEG frames to websocket clients.
// It is both a core.Reporter and a core.FramePublisher.
type Server struct {
	app      *fiber.App
	addr     string
	logger   logrus.FieldLogger
	stats    *metrics.Stats
	profiles []config.ColorProfile

	latest   *core.FrameRecord
	latestMu sync.RWMutex

	detectionsHub *Hub
	framesHub     *Hub
}

func NewServer(addr string, profiles []config.ColorProfile, stats *metrics.Stats, logger logrus.FieldLogger) *Server {
	s := &Server{
		addr:          addr,
		logger:        logger,
		stats:         stats,
		profiles:      profiles,
		detectionsHub: NewHub("detections", logger),
		framesHub:     NewHub("frames", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Color Sphere Detection",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/detections", s.handleDetections)
	api.Get("/stats", s.handleStats)
	api.Get("/profiles", s.handleProfiles)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/detections", websocket.New(s.handleDetectionsWS))
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))

	s.app = app
	return s
}

// App exposes the fiber app for in-process requests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and listens until ctx is done
func (s *Server) Start(ctx context.Context) error {
	go s.detectionsHub.Run()
	go s.framesHub.Run()

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.addr).Info("Web server listening")
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		s.stopHubs()
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
		s.stopHubs()
		if err := s.app.Shutdown(); err != nil {
			return fmt.Errorf("web server shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) stopHubs() {
	s.detectionsHub.Stop()
	s.framesHub.Stop()
}

// Report stores the record as the latest and broadcasts it
func (s *Server) Report(record core.FrameRecord) {
	s.latestMu.Lock()
	s.latest = &record
	s.latestMu.Unlock()

	if s.detectionsHub.ClientCount() == 0 {
		return
	}
	if err := s.detectionsHub.BroadcastJSON(record); err != nil {
		s.logger.WithError(err).Warn("Failed to encode detection record")
	}
}

// PublishFrame JPEG encodes the annotated frame for stream clients
func (s *Server) PublishFrame(record core.FrameRecord, annotated gocv.Mat) error {
	if s.framesHub.ClientCount() == 0 {
		return nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, annotated)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", record.Sequence, err)
	}
	defer buf.Close()

	// The native buffer is released on return
	data := append([]byte(nil), buf.GetBytes()...)
	s.framesHub.BroadcastBinary(data)
	return nil
}

// Latest returns the most recent record, if any
func (s *Server) Latest() (core.FrameRecord, bool) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	if s.latest == nil {
		return core.FrameRecord{}, false
	}
	return *s.latest, true
}
