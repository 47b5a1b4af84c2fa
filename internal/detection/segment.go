package detection

import (
	"fmt"

	"gocv.io/x/gocv"

	"color-sphere-detection/internal/algorithms"
	"color-sphere-detection/internal/config"
)

// Segmenter thresholds an enhanced HSV frame against a color profile
type Segmenter struct {
	median *algorithms.MedianFilter
}

func NewSegmenter(medianKernel int) (*Segmenter, error) {
	median, err := algorithms.NewMedianFilter(medianKernel)
	if err != nil {
		return nil, err
	}
	return &Segmenter{median: median}, nil
}

// InRange returns a mask that is 255 where every HSV channel lies inside the
// profile bounds (inclusive) and 0 elsewhere
func InRange(hsv gocv.Mat, p config.ColorProfile) gocv.Mat {
	lower := gocv.NewScalar(float64(p.Lower[0]), float64(p.Lower[1]), float64(p.Lower[2]), 0)
	upper := gocv.NewScalar(float64(p.Upper[0]), float64(p.Upper[1]), float64(p.Upper[2]), 0)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)
	return mask
}

// Segment masks the original frame with the profile's HSV range and median
// filters the result. Pixels outside the mask are zero.
func (s *Segmenter) Segment(hsv, original gocv.Mat, p config.ColorProfile) (gocv.Mat, error) {
	if hsv.Empty() || original.Empty() {
		return gocv.NewMat(), algorithms.ErrEmptyInput
	}
	if hsv.Rows() != original.Rows() || hsv.Cols() != original.Cols() {
		return gocv.NewMat(), fmt.Errorf("frame size mismatch: hsv %dx%d, original %dx%d",
			hsv.Cols(), hsv.Rows(), original.Cols(), original.Rows())
	}

	mask := InRange(hsv, p)
	defer mask.Close()

	masked := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), original.Rows(), original.Cols(), original.Type())
	defer masked.Close()
	original.CopyToWithMask(&masked, mask)

	return s.median.Apply(masked)
}

func (s *Segmenter) Close() error {
	return s.median.Close()
}
