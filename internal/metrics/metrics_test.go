package metrics

import (
	"testing"
	"time"
)

func TestSnapshotUptimeAndBitrate(t *testing.T) {
	c := New(60, 6000)
	c.Start()
	c.RecordBytesSent(125_000) // 1,000,000 bits
	time.Sleep(20 * time.Millisecond)

	snap := c.Snapshot()
	if snap.TargetFPS != 60 || snap.TargetBitrateKbps != 6000 {
		t.Fatalf("unexpected targets: %+v", snap)
	}
	if snap.BitrateKbps == 0 {
		t.Fatalf("expected nonzero bitrate after bytes sent, got %+v", snap)
	}
}

func TestSnapshotZeroBeforeStart(t *testing.T) {
	c := New(30, 3000)
	c.RecordBytesSent(1000)
	snap := c.Snapshot()
	if snap.UptimeSeconds != 0 || snap.BitrateKbps != 0 {
		t.Fatalf("expected zero uptime/bitrate before Start, got %+v", snap)
	}
}

func TestDropCounters(t *testing.T) {
	c := New(30, 3000)
	c.RecordCaptureDrop()
	c.RecordEncodeDrop()
	c.RecordEncodeDrop()
	c.RecordNetworkDrop()

	snap := c.Snapshot()
	if snap.CaptureDrops != 1 || snap.EncodeDrops != 2 || snap.NetworkDrops != 1 {
		t.Fatalf("unexpected drop counts: %+v", snap)
	}
	if snap.DroppedFrames != 4 {
		t.Fatalf("expected total dropped frames 4, got %d", snap.DroppedFrames)
	}
}

func TestCheckWarningsThresholds(t *testing.T) {
	c := New(30, 3000)

	if w := c.CheckWarnings(); len(w) != 0 {
		t.Fatalf("expected no warnings initially, got %+v", w)
	}

	c.UpdateEncoderLoad(95)
	c.UpdateBufferFullness(50)
	warnings := c.CheckWarnings()
	if len(warnings) != 1 || warnings[0].Kind != WarningEncoderOverload {
		t.Fatalf("expected single EncoderOverload warning, got %+v", warnings)
	}

	c.UpdateBufferFullness(85)
	warnings = c.CheckWarnings()
	if len(warnings) != 2 {
		t.Fatalf("expected two warnings, got %+v", warnings)
	}
}

func TestUpdateGaugesClamp(t *testing.T) {
	c := New(30, 3000)
	c.UpdateEncoderLoad(150)
	c.UpdateBufferFullness(-10)
	snap := c.Snapshot()
	if snap.EncoderLoadPercent != 100 {
		t.Fatalf("expected encoder load clamped to 100, got %v", snap.EncoderLoadPercent)
	}
	if snap.BufferFullnessPercent != 0 {
		t.Fatalf("expected buffer fullness clamped to 0, got %v", snap.BufferFullnessPercent)
	}
}

func TestMarkReportedResetsFPSWindow(t *testing.T) {
	c := New(30, 3000)
	c.RecordFrame()
	c.RecordFrame()
	c.MarkReported()
	snap := c.Snapshot()
	if snap.FPS != 0 {
		t.Fatalf("expected fps ~0 immediately after MarkReported, got %v", snap.FPS)
	}
}
