// Stage system for the per-frame detection pipeline
package algorithms

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrEmptyInput is returned by every stage when handed an empty Mat
var ErrEmptyInput = errors.New("input image is empty")

// Algorithm is a single image stage. Apply never mutates input and returns
// a new Mat owned by the caller. Stages keep their kernels and lookup tables
// for their whole lifetime and release them in Close.
type Algorithm interface {
	Apply(input gocv.Mat) (gocv.Mat, error)
	GetName() string
	GetDescription() string
	Close() error
}

// Chain applies algorithms sequentially, releasing intermediate Mats
type Chain []Algorithm

func (c Chain) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), ErrEmptyInput
	}

	current := input.Clone()
	for _, step := range c {
		next, err := step.Apply(current)
		current.Close()
		if err != nil {
			next.Close()
			return gocv.NewMat(), fmt.Errorf("%s: %w", step.GetName(), err)
		}
		current = next
	}

	return current, nil
}

func (c Chain) GetName() string {
	return "chain"
}

func (c Chain) GetDescription() string {
	return fmt.Sprintf("Sequential chain of %d stages", len(c))
}

// Close releases every stage in the chain
func (c Chain) Close() error {
	var errs []error
	for _, step := range c {
		if err := step.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
