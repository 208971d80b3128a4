// Package mixer implements the broadcaster's N-input audio mixer (spec
// §4.C6): per-input gain/mute, soft-clipped summation, emitted at a fixed
// 10ms cadence regardless of how many inputs actually delivered a chunk
// this tick. Grounded on the teacher pack's portaudio producer pattern
// (bounded channel, drop-newest-on-full) applied to the consumer side.
package mixer

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/alxayo/go-broadcaster/internal/logger"
	"github.com/alxayo/go-broadcaster/internal/media"
)

const (
	tickInterval   = 10 * time.Millisecond
	framesPerTick  = 480                // 10ms at 48kHz
	samplesPerTick = framesPerTick * 2 // stereo interleaved
)

// Input is one tagged mixer input: a receive channel of AudioChunks plus a
// volume/mute pair that may be changed concurrently from another goroutine.
type Input struct {
	ch     <-chan *media.AudioChunk
	gain   atomic.Uint32 // float32 bits, see math.Float32bits
	muted  atomic.Bool
	source media.AudioSourceKind
}

// NewInput wraps a producer channel as a mixer input with an initial gain
// in [0,1] and not muted.
func NewInput(ch <-chan *media.AudioChunk, source media.AudioSourceKind, initialGain float32) *Input {
	in := &Input{ch: ch, source: source}
	in.SetGain(initialGain)
	return in
}

// SetGain updates the input's gain; safe to call concurrently with mixing.
func (in *Input) SetGain(g float32) {
	if g < 0 {
		g = 0
	}
	if g > 1 {
		g = 1
	}
	in.gain.Store(math.Float32bits(g))
}

func (in *Input) gainValue() float32 { return math.Float32frombits(in.gain.Load()) }

// SetMuted updates the input's mute flag; safe to call concurrently.
func (in *Input) SetMuted(m bool) { in.muted.Store(m) }

// Mixer combines N Inputs into one MixedAudioChunk stream on a strict 10ms
// cadence driven by a monotonic wall-clock, per spec §4.C6.
type Mixer struct {
	inputs []*Input
	out    chan *media.AudioChunk
	stopCh chan struct{}
	doneCh chan struct{}
	seq    atomic.Uint64
}

// New creates a Mixer over the given inputs, with a bounded output channel
// of the given capacity.
func New(inputs []*Input, outCapacity int) *Mixer {
	if outCapacity <= 0 {
		outCapacity = 8
	}
	return &Mixer{
		inputs: inputs,
		out:    make(chan *media.AudioChunk, outCapacity),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Output returns the mixer's output channel.
func (m *Mixer) Output() <-chan *media.AudioChunk { return m.out }

// Start launches the mixing worker in the background.
func (m *Mixer) Start() { go m.run() }

// Stop terminates the mixing worker.
func (m *Mixer) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Mixer) run() {
	defer close(m.doneCh)

	start := time.Now()
	var n int64
	scratch := make([]float32, samplesPerTick)

	for {
		next := start.Add(time.Duration(n) * tickInterval)
		wait := time.Until(next)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-m.stopCh:
				timer.Stop()
				return
			}
		} else {
			select {
			case <-m.stopCh:
				return
			default:
			}
		}

		for i := range scratch {
			scratch[i] = 0
		}
		for _, in := range m.inputs {
			if in.muted.Load() {
				continue
			}
			select {
			case chunk, ok := <-in.ch:
				if !ok || chunk == nil {
					continue
				}
				gain := in.gainValue()
				limit := len(scratch)
				if len(chunk.Data) < limit {
					limit = len(chunk.Data)
				}
				for i := 0; i < limit; i++ {
					scratch[i] += chunk.Data[i] * gain
				}
			default:
				// drop-on-empty: this input contributes silence this tick
			}
		}

		mixed := make([]float32, samplesPerTick)
		for i, v := range scratch {
			mixed[i] = softClip(v)
		}

		ptsOffset := next.Sub(start)
		chunk := &media.AudioChunk{
			Data:     mixed,
			Sequence: m.seq.Add(1) - 1,
			PTS100ns: ptsOffset.Nanoseconds() / 100,
			Source:   media.AudioSourceMixed,
		}

		select {
		case m.out <- chunk:
		default:
			logger.Warn("mixer output channel full, dropping mixed chunk")
		}

		n++
	}
}

// softClip applies spec §4.C6's exact soft-clip curve:
// x > 1 -> 1 - 0.5*exp(1-x); x < -1 -> -1 + 0.5*exp(1+x); else x.
func softClip(x float32) float32 {
	xf := float64(x)
	switch {
	case xf > 1:
		return float32(1 - 0.5*math.Exp(1-xf))
	case xf < -1:
		return float32(-1 + 0.5*math.Exp(1+xf))
	default:
		return x
	}
}
