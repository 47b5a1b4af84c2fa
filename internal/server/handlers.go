package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"clients": fiber.Map{
			"detections": s.detectionsHub.ClientCount(),
			"frames":     s.framesHub.ClientCount(),
		},
	})
}

func (s *Server) handleDetections(c *fiber.Ctx) error {
	record, ok := s.Latest()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no frames processed yet",
		})
	}
	return c.JSON(record)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.stats == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "statistics disabled",
		})
	}
	return c.JSON(s.stats.Snapshot())
}

func (s *Server) handleProfiles(c *fiber.Ctx) error {
	return c.JSON(s.profiles)
}

func (s *Server) handleDetectionsWS(c *websocket.Conn) {
	if client := NewClient(s.detectionsHub, c); client != nil {
		client.Run()
	}
}

func (s *Server) handleFramesWS(c *websocket.Conn) {
	if client := NewClient(s.framesHub, c); client != nil {
		client.Run()
	}
}
