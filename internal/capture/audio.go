package capture

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/logger"
	"github.com/alxayo/go-broadcaster/internal/media"
)

const (
	outputSampleRate = 48000
	outputChannels   = 2
)

// PortaudioSource is the microphone/loopback AudioSource implementation: a
// portaudio callback stream that copies each buffer and non-blockingly
// forwards it to a bounded channel, mirroring the teacher pack's
// callback→channel→drop-newest producer shape (audio/microphone.go), but
// generalized to stereo-f32-at-48kHz output and a shared loopback/mic
// constructor since the two differ only in which device portaudio opens.
type PortaudioSource struct {
	kind       media.AudioSourceKind
	deviceName string
	loopback   bool

	mu      sync.Mutex
	stream  *portaudio.Stream
	ch      chan *media.AudioChunk
	seq     atomic.Uint64
	started bool
}

// NewMicrophone opens a capture source against the given input device id,
// or the platform default input when id is empty.
func NewMicrophone(id string) (*PortaudioSource, error) {
	return newPortaudioSource(media.AudioSourceMic, id, false)
}

// NewLoopback opens a capture source against the platform's default system
// (loopback/monitor) output-as-input device.
func NewLoopback() (*PortaudioSource, error) {
	return newPortaudioSource(media.AudioSourceLoopback, "", true)
}

func newPortaudioSource(kind media.AudioSourceKind, id string, loopback bool) (*PortaudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, rerrors.NewStartupError(rerrors.DeviceNotFound, "capture.new_audio_source", err)
	}
	return &PortaudioSource{kind: kind, deviceName: id, loopback: loopback}, nil
}

// Kind implements AudioSource.
func (s *PortaudioSource) Kind() media.AudioSourceKind { return s.kind }

// Start implements AudioSource.
func (s *PortaudioSource) Start() (<-chan *media.AudioChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, rerrors.NewPolicyError(rerrors.AlreadyStarted, "capture.audio_source.start")
	}

	dev, err := s.resolveDevice()
	if err != nil {
		return nil, rerrors.NewStartupError(rerrors.DeviceNotFound, "capture.audio_source.start", err)
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = outputChannels
	params.SampleRate = float64(outputSampleRate)

	s.ch = make(chan *media.AudioChunk, audioChanCapacity)
	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		close(s.ch)
		return nil, rerrors.NewStartupError(rerrors.FormatNotSupported, "capture.audio_source.start", err)
	}
	if err := stream.Start(); err != nil {
		close(s.ch)
		return nil, rerrors.NewStartupError(rerrors.DeviceNotFound, "capture.audio_source.start", err)
	}

	s.stream = stream
	s.started = true
	return s.ch, nil
}

func (s *PortaudioSource) resolveDevice() (*portaudio.DeviceInfo, error) {
	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, err
	}
	if s.deviceName != "" {
		for _, dev := range host.Devices {
			if dev.Name == s.deviceName {
				return dev, nil
			}
		}
	}
	if s.loopback {
		for _, dev := range host.Devices {
			if containsFold(dev.Name, "monitor") || containsFold(dev.Name, "loopback") {
				return dev, nil
			}
		}
	}
	return host.DefaultInputDevice, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// callback runs on portaudio's realtime audio thread: copy, tag, and
// non-blockingly forward. It never allocates beyond the one copy and never
// blocks, per the contract portaudio requires of stream callbacks.
func (s *PortaudioSource) callback(in []float32) {
	data := make([]float32, len(in))
	copy(data, in)

	chunk := &media.AudioChunk{
		Data:     data,
		Sequence: s.nextSeq(),
		Source:   s.kind,
	}

	select {
	case s.ch <- chunk:
	default:
		logger.Warn("audio capture channel full, dropping chunk", "kind", s.kind)
	}
}

func (s *PortaudioSource) nextSeq() uint64 {
	return s.seq.Add(1) - 1
}

// Stop implements AudioSource.
func (s *PortaudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	err := s.stream.Close()
	close(s.ch)
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	if err != nil {
		return rerrors.NewRuntimeError(rerrors.DeviceLost, "capture.audio_source.stop", err)
	}
	return nil
}
