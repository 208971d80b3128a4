package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuantizeS16ClampsRange(t *testing.T) {
	require.Equal(t, int16(32767), quantizeS16(2.0), "expected clamp to max int16")
	require.Equal(t, int16(-32767), quantizeS16(-2.0), "expected clamp to -32767")
}

func TestQuantizeS16Zero(t *testing.T) {
	require.Equal(t, int16(0), quantizeS16(0))
}

func TestQuantizeS16FullScale(t *testing.T) {
	require.Equal(t, int16(32767), quantizeS16(1.0), "expected 32767 at full scale")
}
