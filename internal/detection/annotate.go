package detection

import (
	"image"

	"gocv.io/x/gocv"

	"color-sphere-detection/internal/config"
)

// Annotate draws a color's result onto the display frame: outline and center
// for Hough detections, all contours plus the fitted circle for the fallback
func Annotate(img *gocv.Mat, r ColorResult, pal config.Palette) {
	switch r.Outcome {
	case OutcomeAccepted:
		for _, c := range r.Candidates {
			center := image.Pt(c.X, c.Y)
			gocv.Circle(img, center, c.Radius, pal.Outline, 2)
			gocv.Circle(img, center, 2, pal.Center, 2)
		}

	case OutcomeFallback, OutcomeRejected:
		if len(r.Contours) > 0 {
			contours := gocv.NewPointsVectorFromPoints(r.Contours)
			gocv.DrawContours(img, contours, -1, pal.Contours, 1)
			contours.Close()
		}
		for _, c := range r.Candidates {
			gocv.Circle(img, image.Pt(c.X, c.Y), c.Radius, pal.Fallback, 3)
		}
	}
}
