// Package metrics accumulates running statistics over processed frames
package metrics

import (
	"sort"
	"sync"
	"time"

	"color-sphere-detection/internal/core"
	"color-sphere-detection/internal/detection"
)

// ColorCounts tallies per-frame outcomes for one color
type ColorCounts struct {
	Accepted     uint64 `json:"accepted"`
	Fallback     uint64 `json:"fallback"`
	Rejected     uint64 `json:"rejected"`
	NoCandidates uint64 `json:"no_candidates"`
	Candidates   uint64 `json:"candidates"`
}

// Detections is the number of frames in which the color was found
func (c ColorCounts) Detections() uint64 {
	return c.Accepted + c.Fallback
}

// Snapshot is a point-in-time copy of the statistics
type Snapshot struct {
	RunID        string                 `json:"run_id,omitempty"`
	Frames       uint64                 `json:"frames"`
	Skipped      uint64                 `json:"skipped"`
	LastSequence uint64                 `json:"last_sequence"`
	LastDuration time.Duration          `json:"last_duration_ns"`
	MeanDuration time.Duration          `json:"mean_duration_ns"`
	Colors       map[string]ColorCounts `json:"colors"`
	Started      time.Time              `json:"started"`
	Updated      time.Time              `json:"updated"`
}

// ColorNames returns the colors seen so far in sorted order
func (s Snapshot) ColorNames() []string {
	names := make([]string, 0, len(s.Colors))
	for name := range s.Colors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats collects frame statistics. It is a core.Reporter and is safe for
// concurrent readers.
type Stats struct {
	mu      sync.RWMutex
	snap    Snapshot
	total   time.Duration
	nowFunc func() time.Time
}

func NewStats() *Stats {
	s := &Stats{nowFunc: time.Now}
	s.Reset()
	return s
}

// Reset clears every counter
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = Snapshot{
		Colors:  make(map[string]ColorCounts),
		Started: s.nowFunc(),
	}
	s.total = 0
}

func (s *Stats) Report(record core.FrameRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.RunID = record.RunID
	s.snap.Frames++
	s.snap.LastSequence = record.Sequence
	s.snap.LastDuration = record.Duration
	s.total += record.Duration
	s.snap.MeanDuration = s.total / time.Duration(s.snap.Frames)
	s.snap.Updated = s.nowFunc()

	for _, c := range record.Colors {
		counts := s.snap.Colors[c.Color]
		switch c.Outcome {
		case detection.OutcomeAccepted:
			counts.Accepted++
		case detection.OutcomeFallback:
			counts.Fallback++
		case detection.OutcomeRejected:
			counts.Rejected++
		default:
			counts.NoCandidates++
		}
		counts.Candidates += uint64(len(c.Candidates))
		s.snap.Colors[c.Color] = counts
	}
}

// RecordSkip counts a tick that delivered no color frame
func (s *Stats) RecordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Skipped++
}

// Snapshot returns a copy safe to hand to other goroutines
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snap
	out.Colors = make(map[string]ColorCounts, len(s.snap.Colors))
	for k, v := range s.snap.Colors {
		out.Colors[k] = v
	}
	return out
}
