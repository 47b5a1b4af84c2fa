package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"color-sphere-detection/internal/config"
	"color-sphere-detection/internal/detection"
)

// FrameResult is the outcome of processing one color frame
type FrameResult struct {
	Colors    []detection.ColorResult
	Annotated gocv.Mat
	// Mask is the cleaned mask of the debug profile, nil when not configured
	Mask     *gocv.Mat
	Duration time.Duration
}

// Close releases the annotated frame and the debug mask
func (r *FrameResult) Close() {
	r.Annotated.Close()
	if r.Mask != nil {
		r.Mask.Close()
		r.Mask = nil
	}
}

// Pipeline runs every color profile over a frame
type Pipeline struct {
	detector    *detection.Detector
	profiles    []config.ColorProfile
	palette     config.Palette
	parallel    bool
	maskProfile string
	logger      logrus.FieldLogger
}

// NewPipeline builds the detector from cfg. opts override the localization
// strategies and exist for tests.
func NewPipeline(cfg config.Config, logger logrus.FieldLogger, opts ...detection.Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	palette, err := cfg.Annotations.Palette()
	if err != nil {
		return nil, err
	}

	detector, err := detection.NewDetector(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build detector: %w", err)
	}

	profiles := make([]config.ColorProfile, len(cfg.Profiles))
	copy(profiles, cfg.Profiles)

	return &Pipeline{
		detector:    detector,
		profiles:    profiles,
		palette:     palette,
		parallel:    cfg.Parallel,
		maskProfile: cfg.DebugMaskProfile,
		logger:      logger,
	}, nil
}

// Profiles returns the configured profiles in processing order
func (p *Pipeline) Profiles() []config.ColorProfile {
	out := make([]config.ColorProfile, len(p.profiles))
	copy(out, p.profiles)
	return out
}

// Process enhances the frame once, detects every profile and draws the
// results onto a copy of the frame in profile order
func (p *Pipeline) Process(frame gocv.Mat) (FrameResult, error) {
	start := time.Now()
	result := FrameResult{Annotated: gocv.NewMat()}

	if err := ValidateFrame(frame); err != nil {
		return result, err
	}

	hsv, err := p.detector.Enhance(frame)
	if err != nil {
		return result, fmt.Errorf("enhance: %w", err)
	}
	defer hsv.Close()

	var masks []*gocv.Mat
	if p.parallel {
		result.Colors, masks, err = p.detectParallel(hsv, frame)
	} else {
		result.Colors, masks, err = p.detectSequential(hsv, frame)
	}
	for _, m := range masks {
		if m != nil {
			result.Mask = m
		}
	}
	if err != nil {
		result.Close()
		return FrameResult{Annotated: gocv.NewMat()}, err
	}

	result.Annotated.Close()
	result.Annotated = frame.Clone()
	for _, c := range result.Colors {
		detection.Annotate(&result.Annotated, c, p.palette)

		if c.Outcome == detection.OutcomeFallback || c.Outcome == detection.OutcomeRejected {
			p.logger.WithFields(logrus.Fields{
				"color":    c.Color,
				"contours": len(c.Contours),
				"selected": c.Selected,
			}).Debug("Contour fallback")
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (p *Pipeline) detectSequential(hsv, frame gocv.Mat) ([]detection.ColorResult, []*gocv.Mat, error) {
	colors := make([]detection.ColorResult, len(p.profiles))
	masks := make([]*gocv.Mat, len(p.profiles))

	for i, prof := range p.profiles {
		c, m, err := p.detectOne(hsv, frame, prof)
		if err != nil {
			return nil, masks, err
		}
		colors[i] = c
		masks[i] = m
	}
	return colors, masks, nil
}

func (p *Pipeline) detectParallel(hsv, frame gocv.Mat) ([]detection.ColorResult, []*gocv.Mat, error) {
	colors := make([]detection.ColorResult, len(p.profiles))
	masks := make([]*gocv.Mat, len(p.profiles))
	errs := make([]error, len(p.profiles))

	var wg sync.WaitGroup
	for i, prof := range p.profiles {
		wg.Add(1)
		go func(i int, prof config.ColorProfile) {
			defer wg.Done()
			colors[i], masks[i], errs[i] = p.detectOne(hsv, frame, prof)
		}(i, prof)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, masks, err
	}
	return colors, masks, nil
}

// detectOne returns the cleaned mask only for the debug profile
func (p *Pipeline) detectOne(hsv, frame gocv.Mat, prof config.ColorProfile) (detection.ColorResult, *gocv.Mat, error) {
	mask, err := p.detector.CleanMask(hsv, frame, prof)
	if err != nil {
		mask.Close()
		return detection.ColorResult{Color: prof.Name, Selected: -1}, nil, err
	}

	res, err := p.detector.Locate(mask, prof)
	if err != nil || prof.Name != p.maskProfile {
		mask.Close()
		return res, nil, err
	}
	return res, &mask, nil
}

// Close releases the detector
func (p *Pipeline) Close() error {
	return p.detector.Close()
}
