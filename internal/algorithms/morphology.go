// Morphological operations algorithms
package algorithms

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Morphology applies one morphological operation with a fixed rectangular kernel
type Morphology struct {
	name        string
	description string
	op          gocv.MorphType
	kernel      gocv.Mat
}

func newMorphology(name, description string, op gocv.MorphType, kernelSize int) (*Morphology, error) {
	if kernelSize < 1 || kernelSize > 15 {
		return nil, fmt.Errorf("kernel_size must be between 1 and 15, got %d", kernelSize)
	}

	// A rectangular structuring element is all ones
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernelSize, kernelSize))

	return &Morphology{
		name:        name,
		description: description,
		op:          op,
		kernel:      kernel,
	}, nil
}

// NewOpening creates an opening (erosion then dilation) stage
func NewOpening(kernelSize int) (*Morphology, error) {
	return newMorphology("opening", "Morphological opening to remove isolated foreground speckle", gocv.MorphOpen, kernelSize)
}

// NewClosing creates a closing (dilation then erosion) stage
func NewClosing(kernelSize int) (*Morphology, error) {
	return newMorphology("closing", "Morphological closing to fill small gaps inside blobs", gocv.MorphClose, kernelSize)
}

func (m *Morphology) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), ErrEmptyInput
	}

	output := gocv.NewMat()
	gocv.MorphologyEx(input, &output, m.op, m.kernel)

	return output, nil
}

func (m *Morphology) GetName() string {
	return m.name
}

func (m *Morphology) GetDescription() string {
	return m.description
}

// KernelSize returns the side length of the structuring element
func (m *Morphology) KernelSize() int {
	return m.kernel.Rows()
}

func (m *Morphology) Close() error {
	return m.kernel.Close()
}
