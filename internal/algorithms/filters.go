// Filter algorithms for noise reduction and binarization
package algorithms

import (
	"fmt"

	"gocv.io/x/gocv"
)

// MedianFilter implements median filter
type MedianFilter struct {
	kernelSize int
}

// NewMedianFilter creates a new median filter algorithm
func NewMedianFilter(kernelSize int) (*MedianFilter, error) {
	if kernelSize < 3 || kernelSize > 15 || kernelSize%2 == 0 {
		return nil, fmt.Errorf("kernel_size must be odd and between 3 and 15, got %d", kernelSize)
	}
	return &MedianFilter{kernelSize: kernelSize}, nil
}

func (m *MedianFilter) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), ErrEmptyInput
	}

	output := gocv.NewMat()
	gocv.MedianBlur(input, &output, m.kernelSize)

	return output, nil
}

func (m *MedianFilter) GetName() string {
	return "median"
}

func (m *MedianFilter) GetDescription() string {
	return "Median filter to remove salt-and-pepper noise"
}

func (m *MedianFilter) Close() error {
	return nil
}

// Grayscale converts a 3-channel frame to a single channel
type Grayscale struct{}

func NewGrayscale() *Grayscale {
	return &Grayscale{}
}

func (g *Grayscale) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), ErrEmptyInput
	}

	output := gocv.NewMat()
	if input.Channels() == 1 {
		input.CopyTo(&output)
		return output, nil
	}

	gocv.CvtColor(input, &output, gocv.ColorBGRToGray)
	return output, nil
}

func (g *Grayscale) GetName() string {
	return "grayscale"
}

func (g *Grayscale) GetDescription() string {
	return "Convert color frame to single-channel intensity"
}

func (g *Grayscale) Close() error {
	return nil
}

// Binarize maps every pixel above the threshold to 255 and the rest to 0
type Binarize struct {
	threshold float32
}

func NewBinarize(threshold float32) *Binarize {
	return &Binarize{threshold: threshold}
}

func (b *Binarize) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), ErrEmptyInput
	}
	if input.Channels() != 1 {
		return gocv.NewMat(), fmt.Errorf("binarize expects a single channel, got %d", input.Channels())
	}

	output := gocv.NewMat()
	gocv.Threshold(input, &output, b.threshold, 255, gocv.ThresholdBinary)

	return output, nil
}

func (b *Binarize) GetName() string {
	return "binarize"
}

func (b *Binarize) GetDescription() string {
	return "Fixed-threshold binarization"
}

func (b *Binarize) Close() error {
	return nil
}
