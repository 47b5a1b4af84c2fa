package detection

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"color-sphere-detection/internal/algorithms"
	"color-sphere-detection/internal/config"
)

// Detector holds every stage built once from the configuration. It is
// immutable after construction and safe to share across goroutines as long
// as each call works on its own Mats.
type Detector struct {
	enhancer   *algorithms.SaturationBoost
	segmenter  *Segmenter
	morphology algorithms.Chain
	finder     CircleFinder
	validator  SolidityValidator
	fitter     ContourFitter
}

// Option overrides a localization strategy
type Option func(*Detector)

// WithCircleFinder replaces the Hough search
func WithCircleFinder(f CircleFinder) Option {
	return func(d *Detector) { d.finder = f }
}

// WithContourFitter replaces the contour fallback
func WithContourFitter(f ContourFitter) Option {
	return func(d *Detector) { d.fitter = f }
}

// NewDetector builds the stage set described by cfg
func NewDetector(cfg config.Config, opts ...Option) (*Detector, error) {
	enhancer, err := algorithms.NewSaturationBoost(
		algorithms.NewSaturationCurve(cfg.Saturation.Offset, cfg.Saturation.Gain))
	if err != nil {
		return nil, err
	}

	segmenter, err := NewSegmenter(cfg.MedianKernel)
	if err != nil {
		enhancer.Close()
		return nil, err
	}

	opening, err := algorithms.NewOpening(cfg.MorphKernel)
	if err != nil {
		enhancer.Close()
		segmenter.Close()
		return nil, err
	}
	closing, err := algorithms.NewClosing(cfg.MorphKernel)
	if err != nil {
		enhancer.Close()
		segmenter.Close()
		opening.Close()
		return nil, err
	}

	d := &Detector{
		enhancer:  enhancer,
		segmenter: segmenter,
		morphology: algorithms.Chain{
			algorithms.NewGrayscale(),
			algorithms.NewBinarize(0),
			opening,
			closing,
		},
		finder: HoughFinder{
			DP:      cfg.Hough.DP,
			MinDist: cfg.Hough.MinDist,
			Param1:  cfg.Hough.Param1,
			Param2:  cfg.Hough.Param2,
		},
		validator: SolidityValidator{Ratio: cfg.Hough.Solidity},
		fitter:    LargestContourFitter{MinPoints: cfg.Fallback.MinPoints},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Enhance converts the color frame to HSV with boosted saturation
func (d *Detector) Enhance(frame gocv.Mat) (gocv.Mat, error) {
	return d.enhancer.Apply(frame)
}

// CleanMask segments one profile and returns the cleaned binary mask
func (d *Detector) CleanMask(hsv, frame gocv.Mat, p config.ColorProfile) (gocv.Mat, error) {
	segmented, err := d.segmenter.Segment(hsv, frame, p)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("segment %s: %w", p.Name, err)
	}
	defer segmented.Close()

	mask, err := d.morphology.Apply(segmented)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("morphology %s: %w", p.Name, err)
	}

	return mask, nil
}

// Locate runs the Hough search with solidity validation on a cleaned mask.
// The contour fallback runs only when raw Hough candidates exist and none
// of them validate.
func (d *Detector) Locate(mask gocv.Mat, p config.ColorProfile) (ColorResult, error) {
	result := ColorResult{
		Color:    p.Name,
		Outcome:  OutcomeNoCandidates,
		Selected: -1,
	}

	raw, err := d.finder.FindCircles(mask, p.MinRadius, p.MaxRadius)
	if err != nil {
		return result, fmt.Errorf("circle search %s: %w", p.Name, err)
	}
	result.RawCount = len(raw)

	if len(raw) == 0 {
		return result, nil
	}

	for _, c := range raw {
		if d.validator.Validate(mask, c) {
			result.Candidates = append(result.Candidates, Candidate{
				X:      c.X,
				Y:      c.Y,
				Radius: c.Radius,
				Source: SourceHough,
			})
		}
	}

	if len(result.Candidates) > 0 {
		result.Outcome = OutcomeAccepted
		return result, nil
	}

	fit, err := d.fitter.Fit(mask)
	if err != nil {
		return result, fmt.Errorf("contour fallback %s: %w", p.Name, err)
	}
	result.Contours = fit.Contours
	result.Selected = fit.Selected

	if fit.Candidate == nil {
		result.Outcome = OutcomeRejected
		return result, nil
	}

	result.Outcome = OutcomeFallback
	result.Candidates = []Candidate{*fit.Candidate}
	return result, nil
}

// Detect runs segmentation, cleanup and localization for one profile
func (d *Detector) Detect(hsv, frame gocv.Mat, p config.ColorProfile) (ColorResult, error) {
	mask, err := d.CleanMask(hsv, frame, p)
	if err != nil {
		return ColorResult{Color: p.Name, Selected: -1}, err
	}
	defer mask.Close()

	return d.Locate(mask, p)
}

// Close releases the lookup table and kernels
func (d *Detector) Close() error {
	return errors.Join(
		d.enhancer.Close(),
		d.segmenter.Close(),
		d.morphology.Close(),
	)
}
