// Package metrics tracks the running broadcast's counters (frames, drops,
// bytes sent) and derives the periodic snapshot and warning checks the
// engine's command loop reports to its caller (spec §4.C10).
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// WarningKind enumerates the conditions check_warnings can raise.
type WarningKind uint8

const (
	WarningEncoderOverload WarningKind = iota
	WarningNetworkCongestion
)

// Warning pairs a kind with the percentage that triggered it.
type Warning struct {
	Kind    WarningKind
	Percent float32
}

// Snapshot is the point-in-time metrics report handed to callers, mirroring
// the original engine's StreamMetrics shape.
type Snapshot struct {
	FPS                   float32
	TargetFPS             float32
	BitrateKbps           uint32
	TargetBitrateKbps     uint32
	DroppedFrames         uint64
	CaptureDrops          uint64
	EncodeDrops           uint64
	NetworkDrops          uint64
	EncoderLoadPercent    float32
	BufferFullnessPercent float32
	UptimeSeconds         uint64
}

// Collector accumulates stream counters across the lifetime of one Live
// session. Safe for concurrent use: atomics carry the counters, a mutex
// guards the small set of float gauges and timestamps.
type Collector struct {
	targetFPS         float32
	targetBitrateKbps uint32

	frameCount    atomic.Uint64
	captureDrops  atomic.Uint64
	encodeDrops   atomic.Uint64
	networkDrops  atomic.Uint64
	bytesSent     atomic.Uint64
	lastFrameCnt  atomic.Uint64

	mu             sync.Mutex
	startTime      time.Time // zero value means not started
	lastReportTime time.Time
	encoderLoad    float32
	bufferFullness float32
}

// New creates a Collector for the given target FPS and bitrate, which
// Snapshot reports alongside the measured values.
func New(targetFPS float32, targetBitrateKbps uint32) *Collector {
	return &Collector{
		targetFPS:         targetFPS,
		targetBitrateKbps: targetBitrateKbps,
		lastReportTime:    time.Now(),
	}
}

// Start marks the beginning of a Live session for uptime/bitrate accounting.
func (c *Collector) Start() {
	now := time.Now()
	c.mu.Lock()
	c.startTime = now
	c.lastReportTime = now
	c.mu.Unlock()
}

// Stop clears the start time; subsequent snapshots report zero uptime/bitrate.
func (c *Collector) Stop() {
	c.mu.Lock()
	c.startTime = time.Time{}
	c.mu.Unlock()
}

func (c *Collector) RecordFrame()       { c.frameCount.Add(1) }
func (c *Collector) RecordCaptureDrop() { c.captureDrops.Add(1) }
func (c *Collector) RecordEncodeDrop()  { c.encodeDrops.Add(1) }
func (c *Collector) RecordNetworkDrop() { c.networkDrops.Add(1) }
func (c *Collector) RecordBytesSent(n uint64) { c.bytesSent.Add(n) }

// UpdateEncoderLoad sets the encoder load gauge, clamped to [0, 100].
func (c *Collector) UpdateEncoderLoad(pct float32) {
	c.mu.Lock()
	c.encoderLoad = clampPercent(pct)
	c.mu.Unlock()
}

// UpdateBufferFullness sets the outbound queue fullness gauge, clamped to [0, 100].
func (c *Collector) UpdateBufferFullness(pct float32) {
	c.mu.Lock()
	c.bufferFullness = clampPercent(pct)
	c.mu.Unlock()
}

func clampPercent(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Snapshot computes the current metrics. FPS and bitrate are derived since
// the last MarkReported call / Start.
func (c *Collector) Snapshot() Snapshot {
	now := time.Now()

	c.mu.Lock()
	lastReport := c.lastReportTime
	start := c.startTime
	encoderLoad := c.encoderLoad
	bufferFullness := c.bufferFullness
	c.mu.Unlock()

	currentFrames := c.frameCount.Load()
	lastFrames := c.lastFrameCnt.Load()

	var fps float32
	if elapsed := now.Sub(lastReport).Seconds(); elapsed > 0 {
		fps = float32(float64(currentFrames-lastFrames) / elapsed)
	}

	bytes := c.bytesSent.Load()
	var bitrateKbps uint32
	var uptimeSeconds uint64
	if !start.IsZero() {
		totalElapsed := now.Sub(start).Seconds()
		if totalElapsed > 0 {
			bitrateKbps = uint32(float64(bytes*8) / totalElapsed / 1000.0)
		}
		uptimeSeconds = uint64(now.Sub(start).Seconds())
	}

	captureDrops := c.captureDrops.Load()
	encodeDrops := c.encodeDrops.Load()
	networkDrops := c.networkDrops.Load()

	return Snapshot{
		FPS:                   fps,
		TargetFPS:             c.targetFPS,
		BitrateKbps:           bitrateKbps,
		TargetBitrateKbps:     c.targetBitrateKbps,
		DroppedFrames:         captureDrops + encodeDrops + networkDrops,
		CaptureDrops:          captureDrops,
		EncodeDrops:           encodeDrops,
		NetworkDrops:          networkDrops,
		EncoderLoadPercent:    encoderLoad,
		BufferFullnessPercent: bufferFullness,
		UptimeSeconds:         uptimeSeconds,
	}
}

// CheckWarnings evaluates the current gauges against fixed thresholds
// (encoder load > 90%, buffer fullness > 80%), per spec §4.C10.
func (c *Collector) CheckWarnings() []Warning {
	c.mu.Lock()
	encoderLoad := c.encoderLoad
	bufferFullness := c.bufferFullness
	c.mu.Unlock()

	var warnings []Warning
	if encoderLoad > 90.0 {
		warnings = append(warnings, Warning{Kind: WarningEncoderOverload, Percent: encoderLoad})
	}
	if bufferFullness > 80.0 {
		warnings = append(warnings, Warning{Kind: WarningNetworkCongestion, Percent: bufferFullness})
	}
	return warnings
}

// MarkReported resets the FPS calculation window to "now", the way the
// engine's periodic report tick does after emitting a snapshot.
func (c *Collector) MarkReported() {
	c.mu.Lock()
	c.lastReportTime = time.Now()
	c.mu.Unlock()
	c.lastFrameCnt.Store(c.frameCount.Load())
}
