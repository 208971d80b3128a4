package capture

import (
	"testing"
	"time"
)

type countingDrops struct{ n int }

func (c *countingDrops) RecordCaptureDrop() { c.n++ }

func TestPatternVideoSourceDimensions(t *testing.T) {
	src, err := NewPatternVideoSource("monitor:0", 64, 48, 30, nil)
	if err != nil {
		t.Fatalf("NewPatternVideoSource: %v", err)
	}
	w, h := src.Dimensions()
	if w != 64 || h != 48 {
		t.Fatalf("got %dx%d, want 64x48", w, h)
	}
}

func TestNewPatternVideoSourceRejectsBadDims(t *testing.T) {
	if _, err := NewPatternVideoSource("monitor:0", 0, 10, 30, nil); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestNewPatternVideoSourceRejectsUnknownPrefix(t *testing.T) {
	if _, err := NewPatternVideoSource("display:0", 64, 48, 30, nil); err == nil {
		t.Fatal("expected error for unrecognized source id prefix")
	}
}

func TestPatternVideoSourceProducesFrames(t *testing.T) {
	src, err := NewPatternVideoSource("monitor:0", 8, 8, 100, nil)
	if err != nil {
		t.Fatalf("NewPatternVideoSource: %v", err)
	}
	ch, err := src.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	select {
	case frame := <-ch:
		if frame.Width != 8 || frame.Height != 8 {
			t.Fatalf("unexpected frame dims %dx%d", frame.Width, frame.Height)
		}
		if len(frame.Data) != frame.Stride*frame.Height {
			t.Fatalf("frame data length %d != stride*height %d", len(frame.Data), frame.Stride*frame.Height)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestPatternVideoSourceDoubleStartFails(t *testing.T) {
	src, _ := NewPatternVideoSource("monitor:0", 8, 8, 30, nil)
	if _, err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()
	if _, err := src.Start(); err == nil {
		t.Fatal("expected AlreadyStarted error on second Start")
	}
}

func TestPatternVideoSourceStopClosesChannel(t *testing.T) {
	src, _ := NewPatternVideoSource("monitor:0", 8, 8, 200, nil)
	ch, _ := src.Start()
	src.Stop()

	for range ch {
	}
}
