package detection

import (
	"image"

	"gocv.io/x/gocv"

	"color-sphere-detection/internal/algorithms"
)

// FitResult is the outcome of a contour fallback fit
type FitResult struct {
	Contours  [][]image.Point
	Selected  int
	Candidate *Candidate
}

// ContourFitter estimates a circle from the mask's contours
type ContourFitter interface {
	Fit(mask gocv.Mat) (FitResult, error)
}

// LargestContourFitter fits the minimum enclosing circle of the contour with
// the largest area, provided it has at least MinPoints boundary points
type LargestContourFitter struct {
	MinPoints int
}

func (f LargestContourFitter) Fit(mask gocv.Mat) (FitResult, error) {
	result := FitResult{Selected: -1}
	if mask.Empty() {
		return result, algorithms.ErrEmptyInput
	}

	// Full hierarchy, every boundary point kept
	contours := gocv.FindContours(mask, gocv.RetrievalTree, gocv.ChainApproxNone)
	defer contours.Close()

	if contours.Size() == 0 {
		return result, nil
	}
	result.Contours = contours.ToPoints()

	maxArea := -1.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			result.Selected = i
		}
	}

	largest := contours.At(result.Selected)
	if largest.Size() < f.MinPoints {
		return result, nil
	}

	x, y, radius := gocv.MinEnclosingCircle(largest)
	result.Candidate = &Candidate{
		X:      int(x),
		Y:      int(y),
		Radius: int(radius),
		Source: SourceContour,
	}

	return result, nil
}
