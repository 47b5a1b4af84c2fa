package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Runner owns the detection loop. It acquires the frame source on entry and
// releases it on every exit path.
type Runner struct {
	open       SourceOpener
	pipeline   *Pipeline
	display    Display
	reporters  MultiReporter
	publishers []FramePublisher
	logger     logrus.FieldLogger
	runID      string
}

// RunnerOption configures optional sinks
type RunnerOption func(*Runner)

// WithDisplay sets the sink for annotated frames and stop requests
func WithDisplay(d Display) RunnerOption {
	return func(r *Runner) { r.display = d }
}

// WithReporters adds record reporters
func WithReporters(reporters ...Reporter) RunnerOption {
	return func(r *Runner) { r.reporters = append(r.reporters, reporters...) }
}

// WithPublishers adds annotated frame publishers
func WithPublishers(publishers ...FramePublisher) RunnerOption {
	return func(r *Runner) { r.publishers = append(r.publishers, publishers...) }
}

func NewRunner(open SourceOpener, pipeline *Pipeline, logger logrus.FieldLogger, opts ...RunnerOption) *Runner {
	r := &Runner{
		open:     open,
		pipeline: pipeline,
		logger:   logger,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithField("run_id", r.runID)
	return r
}

// RunID identifies this runner in records and logs
func (r *Runner) RunID() string {
	return r.runID
}

// Run processes frames until ctx is cancelled, the display requests a stop,
// the source ends, or an unrecoverable error occurs. Normal stops return nil.
func (r *Runner) Run(ctx context.Context) error {
	src, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("open frame source: %w", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			r.logger.WithError(cerr).Warn("Failed to release frame source")
		}
		r.logger.Info("Frame source released")
	}()

	r.logger.Info("Detection loop running")

	var seq uint64
	for {
		fs, ok, err := src.WaitForFrames(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.WithField("frames", seq).Info("Frame source ended")
				return nil
			}
			if ctx.Err() != nil {
				r.logger.Info("Detection loop cancelled")
				return nil
			}
			return fmt.Errorf("wait for frames: %w", err)
		}

		if !ok {
			r.reporters.RecordSkip()
			if ctx.Err() != nil {
				r.logger.Info("Detection loop cancelled")
				return nil
			}
			continue
		}

		if err := ValidateFrame(fs.Color); err != nil {
			fs.Close()
			if errors.Is(err, ErrEmptyFrame) {
				r.reporters.RecordSkip()
				continue
			}
			return fmt.Errorf("frame %d: %w", seq+1, err)
		}

		seq++
		err = r.processFrame(seq, fs)
		fs.Close()
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			r.logger.Info("Detection loop cancelled")
			return nil
		}
		if r.display != nil && r.display.StopRequested() {
			r.logger.Info("Stop requested by display")
			return nil
		}
	}
}

func (r *Runner) processFrame(seq uint64, fs FrameSet) error {
	result, err := r.pipeline.Process(fs.Color)
	if err != nil {
		return fmt.Errorf("process frame %d: %w", seq, err)
	}
	defer result.Close()

	record := FrameRecord{
		RunID:     r.runID,
		Sequence:  seq,
		Timestamp: time.Now(),
		Colors:    result.Colors,
		Duration:  result.Duration,
	}

	if r.display != nil {
		if err := r.display.Show(result.Annotated); err != nil {
			return fmt.Errorf("display frame %d: %w", seq, err)
		}
		if md, ok := r.display.(MaskDisplay); ok && result.Mask != nil {
			if err := md.ShowMask(*result.Mask); err != nil {
				return fmt.Errorf("display mask %d: %w", seq, err)
			}
		}
	}

	for _, p := range r.publishers {
		if err := p.PublishFrame(record, result.Annotated); err != nil {
			r.logger.WithError(err).WithField("sequence", seq).Warn("Failed to publish frame")
		}
	}

	r.reporters.Report(record)

	fields := logrus.Fields{
		"sequence": seq,
		"duration": result.Duration,
	}
	for _, c := range result.Colors {
		fields[c.Color] = fmt.Sprintf("%s raw=%d accepted=%d", c.Outcome, c.RawCount, len(c.Candidates))
	}
	r.logger.WithFields(fields).Debug("Frame processed")

	return nil
}
