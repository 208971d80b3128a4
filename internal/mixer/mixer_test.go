package mixer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alxayo/go-broadcaster/internal/media"
)

func TestSoftClip(t *testing.T) {
	require.Equal(t, float32(0.5), softClip(0.5), "expected passthrough in range")

	clippedHigh := softClip(2.0)
	require.Greater(t, clippedHigh, float32(0))
	require.Less(t, clippedHigh, float32(1))

	clippedLow := softClip(-2.0)
	require.Less(t, clippedLow, float32(0))
	require.Greater(t, clippedLow, float32(-1))
}

func TestMixerEmitsSilenceWhenInputsEmpty(t *testing.T) {
	ch := make(chan *media.AudioChunk, 1)
	in := NewInput(ch, media.AudioSourceMic, 1.0)
	m := New([]*Input{in}, 4)
	m.Start()
	defer m.Stop()

	chunk := <-m.Output()
	require.Len(t, chunk.Data, samplesPerTick)
	for _, v := range chunk.Data {
		require.Zero(t, v, "expected silence with no input data")
	}
}

func TestMixerMutedInputContributesSilence(t *testing.T) {
	ch := make(chan *media.AudioChunk, 1)
	ch <- &media.AudioChunk{Data: makeConstant(samplesPerTick, 1.0)}
	in := NewInput(ch, media.AudioSourceMic, 1.0)
	in.SetMuted(true)

	m := New([]*Input{in}, 4)
	m.Start()
	defer m.Stop()

	chunk := <-m.Output()
	for _, v := range chunk.Data {
		require.Zero(t, v, "expected silence for muted input")
	}
}

func TestMixerAppliesGain(t *testing.T) {
	ch := make(chan *media.AudioChunk, 1)
	ch <- &media.AudioChunk{Data: makeConstant(samplesPerTick, 1.0)}
	in := NewInput(ch, media.AudioSourceMic, 0.5)

	m := New([]*Input{in}, 4)
	m.Start()
	defer m.Stop()

	chunk := <-m.Output()
	require.InDelta(t, 0.5, chunk.Data[0], 0.01, "expected ~0.5 after gain")
}

func makeConstant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
