// Package core drives the per-frame detection loop: frame acquisition,
// the per-profile pipeline and fan-out of the results to displays and
// reporters.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"color-sphere-detection/internal/detection"
)

// ErrEmptyFrame is returned when a frame set carries no color image
var ErrEmptyFrame = errors.New("empty color frame")

// FrameSet is one tick of a frame source. Depth is nil for sources without
// a depth stream.
type FrameSet struct {
	Color gocv.Mat
	Depth *gocv.Mat
}

// Close releases both frames
func (f FrameSet) Close() {
	f.Color.Close()
	if f.Depth != nil {
		f.Depth.Close()
	}
}

// ValidateFrame checks that m is a usable 3-channel color frame
func ValidateFrame(m gocv.Mat) error {
	if m.Empty() {
		return ErrEmptyFrame
	}
	if m.Cols() <= 0 || m.Rows() <= 0 {
		return fmt.Errorf("invalid frame dimensions: %dx%d", m.Cols(), m.Rows())
	}
	if m.Channels() != 3 {
		return fmt.Errorf("unsupported number of channels: %d", m.Channels())
	}
	return nil
}

// FrameSource yields frame sets. ok=false with a nil error means no color
// frame was available this tick. io.EOF means the source has ended.
type FrameSource interface {
	WaitForFrames(ctx context.Context) (FrameSet, bool, error)
	Close() error
}

// SourceOpener acquires a frame source for one run
type SourceOpener func(ctx context.Context) (FrameSource, error)

// Display shows annotated frames and relays a user stop request
type Display interface {
	Show(frame gocv.Mat) error
	StopRequested() bool
	Close() error
}

// MaskDisplay is implemented by displays that can show a debug mask
type MaskDisplay interface {
	ShowMask(mask gocv.Mat) error
}

// FrameRecord is the textual result of one processed frame
type FrameRecord struct {
	RunID     string                  `json:"run_id"`
	Sequence  uint64                  `json:"sequence"`
	Timestamp time.Time               `json:"timestamp"`
	Colors    []detection.ColorResult `json:"colors"`
	Duration  time.Duration           `json:"duration_ns"`
}

// Detected returns the colors with at least one candidate, in profile order
func (r FrameRecord) Detected() []detection.ColorResult {
	var out []detection.ColorResult
	for _, c := range r.Colors {
		if c.Detected() {
			out = append(out, c)
		}
	}
	return out
}

// Reporter receives every processed frame record
type Reporter interface {
	Report(record FrameRecord)
}

// SkipRecorder is implemented by reporters that count ticks without a frame
type SkipRecorder interface {
	RecordSkip()
}

// FramePublisher receives the annotated frame. Implementations must not
// retain the Mat after returning.
type FramePublisher interface {
	PublishFrame(record FrameRecord, annotated gocv.Mat) error
}
