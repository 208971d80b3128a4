package pixconv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBGRAToNV12OutputSize(t *testing.T) {
	w, h := 4, 2
	stride := w * 4
	bgra := make([]byte, stride*h)
	for i := range bgra {
		bgra[i] = byte(i)
	}

	out, err := BGRAToNV12(bgra, w, h, stride)
	require.NoError(t, err)
	require.Len(t, out, w*h*3/2)
}

func TestBGRAToNV12WhitePixel(t *testing.T) {
	w, h := 2, 2
	stride := w * 4
	bgra := make([]byte, stride*h)
	for i := 0; i < len(bgra); i += 4 {
		bgra[i+0] = 255 // B
		bgra[i+1] = 255 // G
		bgra[i+2] = 255 // R
		bgra[i+3] = 255 // A (ignored)
	}

	out, err := BGRAToNV12(bgra, w, h, stride)
	require.NoError(t, err)

	ySize := w * h
	for i := 0; i < ySize; i++ {
		require.Equalf(t, byte(255), out[i], "expected Y=255 for white pixel at %d", i)
	}
	uv := out[ySize:]
	for i := 0; i < len(uv); i++ {
		require.Equalf(t, byte(128), uv[i], "expected U/V=128 for white pixel at %d", i)
	}
}

func TestBGRAToNV12IndependentOfStride(t *testing.T) {
	w, h := 2, 2
	minStride := w * 4
	paddedStride := minStride + 16

	tight := make([]byte, minStride*h)
	padded := make([]byte, paddedStride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < minStride; x++ {
			v := byte((y*minStride + x) % 251)
			tight[y*minStride+x] = v
			padded[y*paddedStride+x] = v
		}
	}

	out1, err := BGRAToNV12(tight, w, h, minStride)
	require.NoError(t, err)
	out2, err := BGRAToNV12(padded, w, h, paddedStride)
	require.NoError(t, err)

	require.Equal(t, out1, out2)
}

func TestBGRAToNV12RejectsShortStride(t *testing.T) {
	_, err := BGRAToNV12(make([]byte, 10), 4, 2, 3)
	require.Error(t, err)
}
