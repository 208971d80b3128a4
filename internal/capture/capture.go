// Package capture implements the broadcaster's capture-source contracts
// (spec §4.C7): an opaque-id video source yielding BGRA-with-stride frames
// and mic/loopback audio sources yielding 48kHz stereo f32 chunks, both on
// bounded, drop-newest-on-full channels. Platform-native capture and device
// enumeration are out of scope; VideoSource/AudioSource are the external
// boundary spec §6 describes, and the producers here are the reference
// implementations that satisfy it in any environment (no OS-specific
// screen-grab or WASAPI/CoreAudio bindings).
package capture

import (
	"time"

	"github.com/alxayo/go-broadcaster/internal/media"
)

// RawVideoFrame is a BGRA frame of arbitrary row pitch, as delivered by a
// VideoSource before pixconv.BGRAToNV12 packs it.
type RawVideoFrame struct {
	Data      []byte
	Width     int
	Height    int
	Stride    int
	CaptureAt time.Time
}

// VideoSource is the opaque-id screen/window frame producer contract.
type VideoSource interface {
	// Dimensions reports the source's current frame size.
	Dimensions() (width, height int)
	// Start begins producing frames on a bounded channel (capacity 3).
	// Calling Start twice without an intervening Stop is an error.
	Start() (<-chan RawVideoFrame, error)
	// Stop halts production and closes the channel returned by Start.
	Stop()
}

// AudioSource is the microphone/loopback PCM producer contract. All chunks
// are normalized to 48kHz stereo float32 before leaving the source.
type AudioSource interface {
	// Start begins producing chunks on a bounded channel (capacity 8).
	Start() (<-chan *media.AudioChunk, error)
	// Stop halts production and closes the channel returned by Start.
	Stop() error
	// Kind reports which AudioSourceKind this source tags its chunks with.
	Kind() media.AudioSourceKind
}

// DropCounter receives capture-drop notifications so callers can wire them
// into metrics.Collector without this package importing it directly.
type DropCounter interface {
	RecordCaptureDrop()
}

const (
	videoChanCapacity = 3
	audioChanCapacity = 8
)
