package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gocv.io/x/gocv"

	"color-sphere-detection/internal/config"
	"color-sphere-detection/internal/detection"
)

// diskFrame returns a black frame with a disk that the red profile matches
func diskFrame() gocv.Mat {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	gocv.Circle(&frame, image.Pt(320, 240), 40, color.RGBA{R: 255}, -1)
	return frame
}

type tick struct {
	frame bool
	err   error
	panic bool
}

// scriptedSource plays back a list of ticks, then reports EOF
type scriptedSource struct {
	ticks  []tick
	pos    int
	closed int
}

func (s *scriptedSource) WaitForFrames(ctx context.Context) (FrameSet, bool, error) {
	if s.pos >= len(s.ticks) {
		return FrameSet{}, false, io.EOF
	}
	t := s.ticks[s.pos]
	s.pos++

	switch {
	case t.panic:
		panic("device lost")
	case t.err != nil:
		return FrameSet{}, false, t.err
	case !t.frame:
		return FrameSet{}, false, nil
	}
	return FrameSet{Color: diskFrame()}, true, nil
}

func (s *scriptedSource) Close() error {
	s.closed++
	return nil
}

func (s *scriptedSource) opener() SourceOpener {
	return func(ctx context.Context) (FrameSource, error) { return s, nil }
}

type recordingDisplay struct {
	shown    int
	masks    int
	stopAt   int
	lastSize image.Point
}

func (d *recordingDisplay) Show(frame gocv.Mat) error {
	d.shown++
	d.lastSize = image.Pt(frame.Cols(), frame.Rows())
	return nil
}

func (d *recordingDisplay) ShowMask(mask gocv.Mat) error {
	d.masks++
	return nil
}

func (d *recordingDisplay) StopRequested() bool { return d.stopAt > 0 && d.shown >= d.stopAt }
func (d *recordingDisplay) Close() error        { return nil }

type recordingReporter struct {
	records []FrameRecord
	skips   int
}

func (r *recordingReporter) Report(record FrameRecord) { r.records = append(r.records, record) }
func (r *recordingReporter) RecordSkip()               { r.skips++ }

type countingPublisher struct{ frames int }

func (p *countingPublisher) PublishFrame(record FrameRecord, annotated gocv.Mat) error {
	p.frames++
	return errors.New("subscriber gone")
}

func newTestPipeline(t *testing.T, mutate func(*config.Config)) *Pipeline {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	logger, _ := test.NewNullLogger()
	p, err := NewPipeline(cfg, logger)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestValidateFrame(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	if err := ValidateFrame(empty); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("empty frame: got %v, want ErrEmptyFrame", err)
	}

	gray := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC1)
	defer gray.Close()
	if err := ValidateFrame(gray); err == nil {
		t.Error("single channel frame should be rejected")
	}

	frame := diskFrame()
	defer frame.Close()
	if err := ValidateFrame(frame); err != nil {
		t.Errorf("color frame rejected: %v", err)
	}
}

func TestPipeline_Process(t *testing.T) {
	p := newTestPipeline(t, nil)

	frame := diskFrame()
	defer frame.Close()

	res, err := p.Process(frame)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer res.Close()

	if len(res.Colors) != 3 {
		t.Fatalf("expected a result per profile, got %d", len(res.Colors))
	}
	for i, prof := range p.Profiles() {
		if res.Colors[i].Color != prof.Name {
			t.Errorf("result %d: got %s, want %s", i, res.Colors[i].Color, prof.Name)
		}
	}
	if res.Mask != nil {
		t.Error("no debug mask expected without debug_mask_profile")
	}
	if res.Annotated.Cols() != 640 || res.Annotated.Rows() != 480 {
		t.Errorf("annotated frame size: %dx%d", res.Annotated.Cols(), res.Annotated.Rows())
	}
	if res.Duration <= 0 {
		t.Error("duration should be recorded")
	}

	// The input frame must stay untouched
	px := frame.GetVecbAt(240, 330)
	if px[0] != 0 || px[1] != 0 || px[2] != 255 {
		t.Errorf("input frame was modified: %v", px)
	}
}

func TestPipeline_ParallelMatchesSequential(t *testing.T) {
	seq := newTestPipeline(t, nil)
	par := newTestPipeline(t, func(c *config.Config) { c.Parallel = true })

	frame := diskFrame()
	defer frame.Close()
	gocv.Circle(&frame, image.Pt(100, 100), 30, color.RGBA{R: 255}, -1)

	a, err := seq.Process(frame)
	if err != nil {
		t.Fatalf("sequential Process failed: %v", err)
	}
	defer a.Close()
	b, err := par.Process(frame)
	if err != nil {
		t.Fatalf("parallel Process failed: %v", err)
	}
	defer b.Close()

	if len(a.Colors) != len(b.Colors) {
		t.Fatalf("result count differs: %d vs %d", len(a.Colors), len(b.Colors))
	}
	for i := range a.Colors {
		if a.Colors[i].Color != b.Colors[i].Color || a.Colors[i].FormatCandidates() != b.Colors[i].FormatCandidates() {
			t.Errorf("profile %d differs: %+v vs %+v", i, a.Colors[i], b.Colors[i])
		}
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a.Annotated, b.Annotated, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
	if n := gocv.CountNonZero(gray); n != 0 {
		t.Errorf("annotated frames differ in %d pixels", n)
	}
}

func TestPipeline_DebugMask(t *testing.T) {
	p := newTestPipeline(t, func(c *config.Config) { c.DebugMaskProfile = "red" })

	frame := diskFrame()
	defer frame.Close()

	res, err := p.Process(frame)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer res.Close()

	if res.Mask == nil {
		t.Fatal("expected the red mask")
	}
	if res.Mask.GetUCharAt(240, 320) != 255 {
		t.Error("disk center should be foreground in the debug mask")
	}
}

func TestPipeline_RejectsEmptyFrame(t *testing.T) {
	p := newTestPipeline(t, nil)

	empty := gocv.NewMat()
	defer empty.Close()

	res, err := p.Process(empty)
	defer res.Close()
	if !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("got %v, want ErrEmptyFrame", err)
	}
}

func TestRunner_EndOfSource(t *testing.T) {
	src := &scriptedSource{ticks: []tick{{frame: true}, {}, {}, {frame: true}}}
	display := &recordingDisplay{}
	reporter := &recordingReporter{}
	publisher := &countingPublisher{}

	r := NewRunner(src.opener(), newTestPipeline(t, nil), nullLogger(),
		WithDisplay(display), WithReporters(reporter), WithPublishers(publisher))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run should stop cleanly at EOF, got %v", err)
	}

	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
	if len(reporter.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(reporter.records))
	}
	if reporter.skips != 2 {
		t.Errorf("expected 2 skipped ticks, got %d", reporter.skips)
	}
	if display.shown != 2 || display.lastSize != image.Pt(640, 480) {
		t.Errorf("display showed %d frames, last size %v", display.shown, display.lastSize)
	}
	if publisher.frames != 2 {
		t.Errorf("publisher errors must not stop the loop, published %d", publisher.frames)
	}

	for i, rec := range reporter.records {
		if rec.Sequence != uint64(i+1) {
			t.Errorf("record %d: sequence %d", i, rec.Sequence)
		}
		if rec.RunID != r.RunID() {
			t.Errorf("record %d: run id %q, want %q", i, rec.RunID, r.RunID())
		}
		detected := rec.Detected()
		if len(detected) != 1 || detected[0].Color != "red" {
			t.Errorf("record %d: expected only red detected, got %+v", i, detected)
		}
	}
}

func TestRunner_SourceError(t *testing.T) {
	boom := errors.New("usb disconnected")
	src := &scriptedSource{ticks: []tick{{frame: true}, {err: boom}}}
	reporter := &recordingReporter{}

	r := NewRunner(src.opener(), newTestPipeline(t, nil), nullLogger(), WithReporters(reporter))

	err := r.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped source error", err)
	}
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
	if len(reporter.records) != 1 {
		t.Errorf("expected 1 record before the error, got %d", len(reporter.records))
	}
}

func TestRunner_ReleasesOnPanic(t *testing.T) {
	src := &scriptedSource{ticks: []tick{{frame: true}, {panic: true}}}
	r := NewRunner(src.opener(), newTestPipeline(t, nil), nullLogger())

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = r.Run(context.Background())
	}()

	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
}

func TestRunner_Cancel(t *testing.T) {
	src := &scriptedSource{ticks: []tick{{frame: true}, {frame: true}, {frame: true}}}
	reporter := &recordingReporter{}
	ctx, cancel := context.WithCancel(context.Background())

	cancelling := reporterFunc(func(rec FrameRecord) {
		reporter.Report(rec)
		cancel()
	})

	r := NewRunner(src.opener(), newTestPipeline(t, nil), nullLogger(), WithReporters(cancelling))
	if err := r.Run(ctx); err != nil {
		t.Fatalf("cancel should stop cleanly, got %v", err)
	}

	// Cancellation is observed after the current frame completes
	if len(reporter.records) != 1 {
		t.Errorf("expected exactly 1 processed frame, got %d", len(reporter.records))
	}
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
}

func TestRunner_DisplayStop(t *testing.T) {
	src := &scriptedSource{ticks: []tick{{frame: true}, {frame: true}, {frame: true}, {frame: true}}}
	display := &recordingDisplay{stopAt: 2}

	r := NewRunner(src.opener(), newTestPipeline(t, nil), nullLogger(), WithDisplay(display))
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("display stop should be clean, got %v", err)
	}
	if display.shown != 2 {
		t.Errorf("expected 2 frames shown, got %d", display.shown)
	}
	if display.masks != 0 {
		t.Errorf("no masks expected without debug profile, got %d", display.masks)
	}
}

func TestRunner_ShowsDebugMask(t *testing.T) {
	src := &scriptedSource{ticks: []tick{{frame: true}}}
	display := &recordingDisplay{}
	p := newTestPipeline(t, func(c *config.Config) { c.DebugMaskProfile = "blue" })

	r := NewRunner(src.opener(), p, nullLogger(), WithDisplay(display))
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if display.masks != 1 {
		t.Errorf("expected 1 mask shown, got %d", display.masks)
	}
}

func TestRunner_OpenFailure(t *testing.T) {
	boom := errors.New("no camera")
	open := func(ctx context.Context) (FrameSource, error) { return nil, boom }

	r := NewRunner(open, newTestPipeline(t, nil), nullLogger())
	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped open error", err)
	}
}

type reporterFunc func(FrameRecord)

func (f reporterFunc) Report(rec FrameRecord) { f(rec) }

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	rep := NewConsoleReporter(&buf)

	rep.Report(FrameRecord{Colors: []detection.ColorResult{
		{Color: "purple", Outcome: detection.OutcomeNoCandidates},
		{Color: "red", Outcome: detection.OutcomeAccepted, Candidates: []detection.Candidate{{X: 320, Y: 240, Radius: 40}}},
		{Color: "blue", Outcome: detection.OutcomeFallback, Candidates: []detection.Candidate{{X: 10, Y: 20, Radius: 30}}},
	}})
	rep.Report(FrameRecord{})

	want := "red: [(320, 240, 40)]\nblue: [(10, 20, 30)]\n--------------\n--------------\n"
	if got := buf.String(); got != want {
		t.Errorf("console output:\ngot  %q\nwant %q", got, want)
	}
}

func TestMultiReporter(t *testing.T) {
	a, b := &recordingReporter{}, &recordingReporter{}
	var plain int
	m := MultiReporter{a, reporterFunc(func(FrameRecord) { plain++ }), b}

	m.Report(FrameRecord{Sequence: 7})
	m.RecordSkip()

	if len(a.records) != 1 || len(b.records) != 1 || plain != 1 {
		t.Errorf("every reporter should receive the record")
	}
	if a.skips != 1 || b.skips != 1 {
		t.Errorf("skip counters: %d, %d", a.skips, b.skips)
	}
}
