package io

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"color-sphere-detection/internal/config"
	"color-sphere-detection/internal/core"
)

// SnapshotWriter saves the annotated frame of every Nth frame that has at
// least one detection, starting with the first
type SnapshotWriter struct {
	mu       sync.Mutex
	dir      string
	every    int
	maxWidth int
	format   string
	seen     int
	saved    []string
	logger   logrus.FieldLogger
}

func NewSnapshotWriter(cfg config.SnapshotConfig, logger logrus.FieldLogger) (*SnapshotWriter, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot directory not set")
	}
	if cfg.Every < 1 {
		return nil, fmt.Errorf("snapshot interval must be at least 1, got %d", cfg.Every)
	}
	format := cfg.Format
	switch format {
	case "":
		format = "png"
	case "png", "jpg", "jpeg":
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %s", cfg.Format)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	return &SnapshotWriter{
		dir:      cfg.Dir,
		every:    cfg.Every,
		maxWidth: cfg.MaxWidth,
		format:   format,
		logger:   logger,
	}, nil
}

func (s *SnapshotWriter) PublishFrame(record core.FrameRecord, annotated gocv.Mat) error {
	if len(record.Detected()) == 0 {
		return nil
	}

	s.mu.Lock()
	s.seen++
	due := (s.seen-1)%s.every == 0
	s.mu.Unlock()
	if !due {
		return nil
	}

	img, err := annotated.ToImage()
	if err != nil {
		return fmt.Errorf("convert frame %d: %w", record.Sequence, err)
	}

	if s.maxWidth > 0 && img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
	}

	runID := record.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%06d.%s", runID, record.Sequence, s.format))
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	s.mu.Lock()
	s.saved = append(s.saved, path)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"path":     path,
		"sequence": record.Sequence,
	}).Debug("Snapshot saved")

	return nil
}

// Saved lists the snapshot files written so far
func (s *SnapshotWriter) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.saved))
	copy(out, s.saved)
	return out
}
