package core

import (
	"fmt"
	"io"
	"sync"
)

// FrameSeparator ends the console output of every processed frame
const FrameSeparator = "--------------"

// ConsoleReporter prints one line per detected color followed by a separator
type ConsoleReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (c *ConsoleReporter) Report(record FrameRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, res := range record.Detected() {
		fmt.Fprintf(c.w, "%s: %s\n", res.Color, res.FormatCandidates())
	}
	fmt.Fprintln(c.w, FrameSeparator)
}

// MultiReporter fans a record out to several reporters in order
type MultiReporter []Reporter

func (m MultiReporter) Report(record FrameRecord) {
	for _, r := range m {
		r.Report(record)
	}
}

// RecordSkip forwards to every reporter that counts skipped ticks
func (m MultiReporter) RecordSkip() {
	for _, r := range m {
		if s, ok := r.(SkipRecorder); ok {
			s.RecordSkip()
		}
	}
}
