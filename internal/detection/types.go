// Package detection locates colored spheres in a single frame.
//
// Each color profile runs through segmentation, morphological cleanup and a
// two-strategy circle localization: Hough candidates validated for solidity,
// with a minimum-enclosing-circle fit on the largest contour as fallback.
package detection

import (
	"fmt"
	"image"
	"strings"
)

// Source identifies which strategy produced a candidate
type Source string

const (
	SourceHough   Source = "hough"
	SourceContour Source = "contour"
)

// Outcome summarizes what happened for one color in one frame
type Outcome string

const (
	// OutcomeNoCandidates means the Hough search returned nothing; no fallback is attempted
	OutcomeNoCandidates Outcome = "no_candidates"
	// OutcomeAccepted means at least one Hough candidate passed validation
	OutcomeAccepted Outcome = "accepted"
	// OutcomeFallback means every Hough candidate failed and the contour fit produced a circle
	OutcomeFallback Outcome = "fallback"
	// OutcomeRejected means the fallback ran but found no usable contour
	OutcomeRejected Outcome = "rejected"
)

// Circle is a raw circle in pixel coordinates
type Circle struct {
	X, Y, Radius int
}

// Candidate is an accepted detection
type Candidate struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Radius int    `json:"radius"`
	Source Source `json:"source"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.X, c.Y, c.Radius)
}

// ColorResult is the detection result for one profile in one frame.
// Candidates holds Hough detections or a single contour detection, never both.
type ColorResult struct {
	Color      string      `json:"color"`
	Outcome    Outcome     `json:"outcome"`
	RawCount   int         `json:"raw_count"`
	Candidates []Candidate `json:"candidates"`

	// Contours extracted by the fallback, kept for diagnostics drawing
	Contours [][]image.Point `json:"-"`
	// Selected is the index of the largest contour, -1 when none
	Selected int `json:"-"`
}

// Detected reports whether the color contributed any candidate
func (r ColorResult) Detected() bool {
	return len(r.Candidates) > 0
}

// FormatCandidates renders the candidate list as "[(x, y, r) ...]"
func (r ColorResult) FormatCandidates() string {
	parts := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
