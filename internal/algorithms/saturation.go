// Saturation enhancement in HSV space
package algorithms

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// SaturationCurve maps an input intensity to a boosted intensity
type SaturationCurve [256]uint8

// NewSaturationCurve builds curve[i] = clamp(round(offset + gain*i), 0, 255)
func NewSaturationCurve(offset, gain float64) SaturationCurve {
	var curve SaturationCurve
	for i := range curve {
		v := math.Round(offset + gain*float64(i))
		curve[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	return curve
}

// Monotonic reports whether the curve never decreases
func (c SaturationCurve) Monotonic() bool {
	for i := 1; i < len(c); i++ {
		if c[i] < c[i-1] {
			return false
		}
	}
	return true
}

// SaturationBoost converts a color frame to HSV and remaps the saturation
// channel through a curve, leaving hue and value untouched
type SaturationBoost struct {
	curve SaturationCurve
	lut   gocv.Mat
}

// NewSaturationBoost creates the stage and its 3-channel lookup table
func NewSaturationBoost(curve SaturationCurve) (*SaturationBoost, error) {
	table := make([]byte, 256*3)
	for i := 0; i < 256; i++ {
		table[3*i] = uint8(i)
		table[3*i+1] = curve[i]
		table[3*i+2] = uint8(i)
	}

	shared, err := gocv.NewMatFromBytes(1, 256, gocv.MatTypeCV8UC3, table)
	if err != nil {
		return nil, fmt.Errorf("failed to build saturation lut: %w", err)
	}
	defer shared.Close()

	// Own the table memory instead of aliasing the Go slice
	return &SaturationBoost{
		curve: curve,
		lut:   shared.Clone(),
	}, nil
}

func (s *SaturationBoost) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), ErrEmptyInput
	}
	if input.Channels() != 3 {
		return gocv.NewMat(), fmt.Errorf("saturation boost expects 3 channels, got %d", input.Channels())
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(input, &hsv, gocv.ColorRGBToHSV)

	output := gocv.NewMat()
	gocv.LUT(hsv, s.lut, &output)

	return output, nil
}

// Curve returns the saturation mapping
func (s *SaturationBoost) Curve() SaturationCurve {
	return s.curve
}

func (s *SaturationBoost) GetName() string {
	return "saturation_boost"
}

func (s *SaturationBoost) GetDescription() string {
	return "RGB to HSV conversion with saturation lookup boost"
}

func (s *SaturationBoost) Close() error {
	return s.lut.Close()
}
