package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"gocv.io/x/gocv"

	"color-sphere-detection/internal/config"
	"color-sphere-detection/internal/core"
	"color-sphere-detection/internal/detection"
	"color-sphere-detection/internal/metrics"
)

func newTestServer(addr string) (*Server, *metrics.Stats) {
	logger, _ := test.NewNullLogger()
	stats := metrics.NewStats()
	return NewServer(addr, config.DefaultProfiles(), stats, logger), stats
}

func sampleRecord(seq uint64) core.FrameRecord {
	return core.FrameRecord{
		RunID:    "run-1",
		Sequence: seq,
		Colors: []detection.ColorResult{
			{Color: "red", Outcome: detection.OutcomeAccepted, RawCount: 1,
				Candidates: []detection.Candidate{{X: 320, Y: 240, Radius: 40, Source: detection.SourceHough}}},
			{Color: "blue", Outcome: detection.OutcomeNoCandidates},
		},
		Duration: 5 * time.Millisecond,
	}
}

func getJSON(t *testing.T, s *Server, path string, wantStatus int, v any) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", path, resp.StatusCode, wantStatus)
	}
	if v == nil {
		return
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("GET %s: decode %q: %v", path, body, err)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(":0")

	var body map[string]any
	getJSON(t, s, "/api/health", 200, &body)
	if body["status"] != "ok" {
		t.Errorf("status: got %v", body["status"])
	}
}

func TestDetections(t *testing.T) {
	s, _ := newTestServer(":0")

	getJSON(t, s, "/api/detections", 404, nil)

	s.Report(sampleRecord(1))
	s.Report(sampleRecord(2))

	var rec core.FrameRecord
	getJSON(t, s, "/api/detections", 200, &rec)
	if rec.Sequence != 2 || rec.RunID != "run-1" {
		t.Errorf("latest record: %+v", rec)
	}
	if len(rec.Colors) != 2 || len(rec.Colors[0].Candidates) != 1 || rec.Colors[0].Candidates[0].Radius != 40 {
		t.Errorf("colors not round-tripped: %+v", rec.Colors)
	}
}

func TestStats(t *testing.T) {
	s, stats := newTestServer(":0")
	stats.Report(sampleRecord(1))
	stats.RecordSkip()

	var snap metrics.Snapshot
	getJSON(t, s, "/api/stats", 200, &snap)
	if snap.Frames != 1 || snap.Skipped != 1 || snap.Colors["red"].Accepted != 1 {
		t.Errorf("stats: %+v", snap)
	}
}

func TestStats_Disabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewServer(":0", nil, nil, logger)
	getJSON(t, s, "/api/stats", 503, nil)
}

func TestProfiles(t *testing.T) {
	s, _ := newTestServer(":0")

	var profiles []config.ColorProfile
	getJSON(t, s, "/api/profiles", 200, &profiles)
	if len(profiles) != 3 || profiles[1].Name != "red" || profiles[1].Lower != (config.HSV{117, 143, 0}) {
		t.Errorf("profiles: %+v", profiles)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(":0")
	getJSON(t, s, "/ws/detections", 426, nil)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return ws
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", url, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub %s: %d clients, want %d", h.name, h.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocketStreams(t *testing.T) {
	s, _ := newTestServer("127.0.0.1:18191")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	detWS := dial(t, "ws://127.0.0.1:18191/ws/detections")
	defer detWS.Close()
	frameWS := dial(t, "ws://127.0.0.1:18191/ws/frames")
	defer frameWS.Close()

	waitClients(t, s.detectionsHub, 1)
	waitClients(t, s.framesHub, 1)

	rec := sampleRecord(7)
	s.Report(rec)

	detWS.SetReadDeadline(time.Now().Add(3 * time.Second))
	msgType, data, err := detWS.ReadMessage()
	if err != nil {
		t.Fatalf("read detection: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("detections should be text messages, got %d", msgType)
	}
	var got core.FrameRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode detection: %v", err)
	}
	if got.Sequence != 7 {
		t.Errorf("sequence: got %d, want 7", got.Sequence)
	}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	gocv.Circle(&frame, image.Pt(32, 24), 10, color.RGBA{R: 255}, -1)

	if err := s.PublishFrame(rec, frame); err != nil {
		t.Fatalf("PublishFrame failed: %v", err)
	}

	frameWS.SetReadDeadline(time.Now().Add(3 * time.Second))
	msgType, data, err = frameWS.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Errorf("frames should be binary messages, got %d", msgType)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("frame is not a JPEG: % x", data[:min(len(data), 4)])
	}
}

func TestPublishFrame_NoClients(t *testing.T) {
	s, _ := newTestServer(":0")

	// No subscribers, so an empty Mat is never encoded
	empty := gocv.NewMat()
	defer empty.Close()
	if err := s.PublishFrame(sampleRecord(1), empty); err != nil {
		t.Errorf("PublishFrame without clients should be a no-op, got %v", err)
	}
}

func TestHub_DropsClientsOnStop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := NewHub("test", logger)
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	h.Stop()
	h.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if client := NewClient(h, nil); client != nil {
		t.Error("a stopped hub must not accept clients")
	}
}
