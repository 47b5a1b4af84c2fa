package detection

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"color-sphere-detection/internal/algorithms"
)

// OpenCV's HOUGH_GRADIENT_ALT; param2 is then a circle perfectness in [0,1]
const houghGradientAlt gocv.HoughMode = 4

// CircleFinder produces raw circle candidates from a binary mask
type CircleFinder interface {
	FindCircles(mask gocv.Mat, minRadius, maxRadius int) ([]Circle, error)
}

// HoughFinder runs the Hough gradient circle search
type HoughFinder struct {
	DP      float64
	MinDist float64
	Param1  float64
	Param2  float64
}

func (h HoughFinder) FindCircles(mask gocv.Mat, minRadius, maxRadius int) ([]Circle, error) {
	if mask.Empty() {
		return nil, algorithms.ErrEmptyInput
	}

	circles := gocv.NewMat()
	defer circles.Close()

	gocv.HoughCirclesWithParams(mask, &circles, houghGradientAlt,
		h.DP, h.MinDist, h.Param1, h.Param2, minRadius, maxRadius)

	if circles.Empty() {
		return nil, nil
	}

	found := make([]Circle, 0, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		v := circles.GetVecfAt(0, i)
		c := Circle{
			X:      int(math.RoundToEven(float64(v[0]))),
			Y:      int(math.RoundToEven(float64(v[1]))),
			Radius: int(math.RoundToEven(float64(v[2]))),
		}
		if c.Radius < minRadius || c.Radius > maxRadius {
			continue
		}
		found = append(found, c)
	}

	return found, nil
}

// SolidityValidator accepts a circle only when the mask covers more than
// Ratio of the circle's ideal area
type SolidityValidator struct {
	Ratio float64
}

// CoverageAccepted is the strict acceptance test overlap > ratio*pi*r^2
func CoverageAccepted(overlap, radius, ratio float64) bool {
	return overlap > ratio*math.Pi*radius*radius
}

// Overlap counts pixels that are foreground in both the mask and the filled disk of c
func (v SolidityValidator) Overlap(mask gocv.Mat, c Circle) int {
	disk := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), mask.Rows(), mask.Cols(), gocv.MatTypeCV8UC1)
	defer disk.Close()
	gocv.Circle(&disk, image.Pt(c.X, c.Y), c.Radius, color.RGBA{255, 255, 255, 0}, -1)

	both := gocv.NewMat()
	defer both.Close()
	gocv.BitwiseAnd(disk, mask, &both)

	return gocv.CountNonZero(both)
}

// Validate reports whether c is a solid disk in the mask
func (v SolidityValidator) Validate(mask gocv.Mat, c Circle) bool {
	return CoverageAccepted(float64(v.Overlap(mask, c)), float64(c.Radius), v.Ratio)
}
