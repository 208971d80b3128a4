package encoder

import (
	"encoding/binary"
	"fmt"
	"math"

	astiav "github.com/asticode/go-astiav"

	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/media"
)

const framesPerAacPacket = 1024 // samples per channel, per spec §4.C4

// AudioConfig configures an AudioEncoder.
type AudioConfig struct {
	SampleRate  int
	Channels    int // 1 (mono) or 2 (stereo)
	BitrateKbps uint32
}

// DefaultAudioConfig returns spec §4.C4's stated default (48kHz, stereo,
// 128kbps CBR).
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{SampleRate: 48000, Channels: 2, BitrateKbps: 128}
}

// AudioEncoder is the C4 facade: clamped/scaled PCM-float in, raw AAC-LC
// access units out, strictly 1024 samples per channel per emitted packet.
type AudioEncoder struct {
	cfg          AudioConfig
	ctx          *astiav.CodecContext
	frame        *astiav.Frame
	sampleFormat astiav.SampleFormat

	buffer             []float32 // interleaved, not yet consumed into a frame
	bufferHeadPTS100ns int64
	pending            []*media.EncodedAudioPacket
}

// NewAudioEncoder opens an AAC-LC encoder for cfg.
func NewAudioEncoder(cfg AudioConfig) (*AudioEncoder, error) {
	codec := astiav.FindEncoder(astiav.CodecIDAac)
	if codec == nil {
		return nil, rerrors.NewStartupError(rerrors.EncoderInit, "encoder.audio.open", fmt.Errorf("no AAC encoder registered"))
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, rerrors.NewStartupError(rerrors.EncoderInit, "encoder.audio.open", fmt.Errorf("AllocCodecContext(aac) failed"))
	}

	layout := astiav.ChannelLayoutMono
	if cfg.Channels >= 2 {
		layout = astiav.ChannelLayoutStereo
	}

	sampleFormat := astiav.SampleFormatFltp
	if sfs := codec.SampleFormats(); len(sfs) > 0 {
		sampleFormat = sfs[0]
	}

	ctx.SetSampleRate(cfg.SampleRate)
	ctx.SetChannelLayout(layout)
	ctx.SetSampleFormat(sampleFormat)
	ctx.SetBitRate(int64(cfg.BitrateKbps) * 1000)
	ctx.SetTimeBase(astiav.NewRational(1, cfg.SampleRate))

	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, rerrors.NewStartupError(rerrors.EncoderInit, "encoder.audio.open", err)
	}

	return &AudioEncoder{
		cfg:          cfg,
		ctx:          ctx,
		frame:        astiav.AllocFrame(),
		sampleFormat: sampleFormat,
	}, nil
}

// Config returns the configuration this encoder was opened with, so
// callers building the AAC AudioSpecificConfig sequence header know the
// actual sample rate and channel count in effect.
func (e *AudioEncoder) Config() AudioConfig { return e.cfg }

func (e *AudioEncoder) samplePeriod100ns() int64 {
	return 10_000_000 / int64(e.cfg.SampleRate)
}

// Encode implements encode(samples, pts_100ns) -> Option<EncodedAudioPacket>.
// samples is interleaved float32 PCM at cfg.Channels channels; it is
// buffered internally and consumed in exact 1024-sample-per-channel
// frames. At most one packet is returned per call; any extra completed
// frame is queued and drained by subsequent calls.
func (e *AudioEncoder) Encode(samples []float32, pts100ns int64) (*media.EncodedAudioPacket, error) {
	if err := e.absorb(samples, pts100ns); err != nil {
		return nil, err
	}
	if len(e.pending) == 0 {
		return nil, nil
	}
	pkt := e.pending[0]
	e.pending = e.pending[1:]
	return pkt, nil
}

func (e *AudioEncoder) absorb(samples []float32, pts100ns int64) error {
	if len(e.buffer) == 0 {
		e.bufferHeadPTS100ns = pts100ns
	}
	e.buffer = append(e.buffer, samples...)

	frameSamples := framesPerAacPacket * e.cfg.Channels
	for len(e.buffer) >= frameSamples {
		chunk := e.buffer[:frameSamples]
		e.buffer = e.buffer[frameSamples:]

		pkts, err := e.encodeFrame(chunk, e.bufferHeadPTS100ns)
		if err != nil {
			return err
		}
		e.pending = append(e.pending, pkts...)
		e.bufferHeadPTS100ns += int64(framesPerAacPacket) * e.samplePeriod100ns()
	}
	return nil
}

// Flush implements flush(): pad any remaining buffered samples with
// silence to a full frame, encode it, signal end-of-stream, and drain
// every remaining buffered packet (including anything already pending).
func (e *AudioEncoder) Flush() ([]*media.EncodedAudioPacket, error) {
	out := append([]*media.EncodedAudioPacket(nil), e.pending...)
	e.pending = nil

	frameSamples := framesPerAacPacket * e.cfg.Channels
	if len(e.buffer) > 0 {
		padded := make([]float32, frameSamples)
		copy(padded, e.buffer)
		e.buffer = nil
		pkts, err := e.encodeFrame(padded, e.bufferHeadPTS100ns)
		if err != nil {
			return out, err
		}
		out = append(out, pkts...)
	}

	if err := e.ctx.SendFrame(nil); err != nil {
		return out, rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.audio.flush", err)
	}
	for {
		pkt, err := e.receiveOne(0)
		if err != nil {
			return out, err
		}
		if pkt == nil {
			return out, nil
		}
		out = append(out, pkt)
	}
}

// encodeFrame quantizes one exact 1024-sample-per-channel frame to int16
// (clamp to [-1,1], scale by 32767) per spec §4.C4, converts it into the
// encoder's native sample format, and runs one SendFrame/ReceivePacket
// round. AAC-LC at 48kHz virtually always yields at most one packet per
// input frame, but the loop drains whatever the encoder buffers.
func (e *AudioEncoder) encodeFrame(interleaved []float32, framePTS100ns int64) ([]*media.EncodedAudioPacket, error) {
	quantized := make([]int16, len(interleaved))
	for i, s := range interleaved {
		quantized[i] = quantizeS16(s)
	}

	f := e.frame
	f.Unref()
	f.SetSampleFormat(e.sampleFormat)
	f.SetChannelLayout(channelLayoutFor(e.cfg.Channels))
	f.SetSampleRate(e.cfg.SampleRate)
	f.SetNbSamples(framesPerAacPacket)
	if err := f.AllocBuffer(0); err != nil {
		return nil, rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.audio.alloc_frame", err)
	}
	if err := fillAudioFrame(f, quantized, e.cfg.Channels, e.sampleFormat); err != nil {
		return nil, err
	}

	ptsTicks := framePTS100ns * int64(e.cfg.SampleRate) / 10_000_000
	f.SetPts(ptsTicks)

	if err := e.ctx.SendFrame(f); err != nil {
		return nil, rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.audio.encode", err)
	}

	var out []*media.EncodedAudioPacket
	for {
		pkt, err := e.receiveOne(framePTS100ns)
		if err != nil {
			return out, err
		}
		if pkt == nil {
			return out, nil
		}
		out = append(out, pkt)
	}
}

func (e *AudioEncoder) receiveOne(fallbackPTS100ns int64) (*media.EncodedAudioPacket, error) {
	pkt := astiav.AllocPacket()
	defer pkt.Free()

	if err := e.ctx.ReceivePacket(pkt); err != nil {
		if errIsAgainOrEOF(err) {
			return nil, nil
		}
		return nil, rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.audio.receive", err)
	}
	defer pkt.Unref()

	data := append([]byte(nil), pkt.Data()...)
	return &media.EncodedAudioPacket{Data: data, PTS100ns: fallbackPTS100ns}, nil
}

// Close releases the encoder's FFmpeg resources.
func (e *AudioEncoder) Close() {
	if e.frame != nil {
		e.frame.Free()
		e.frame = nil
	}
	if e.ctx != nil {
		e.ctx.Free()
		e.ctx = nil
	}
}

func quantizeS16(s float32) int16 {
	if s > 1.0 {
		s = 1.0
	}
	if s < -1.0 {
		s = -1.0
	}
	return int16(math.Round(float64(s) * 32767))
}

func channelLayoutFor(channels int) astiav.ChannelLayout {
	if channels >= 2 {
		return astiav.ChannelLayoutStereo
	}
	return astiav.ChannelLayoutMono
}

// fillAudioFrame writes quantized (int16-precision, stored as float32 in
// the [-1,1] range the encoder's native format expects) samples into f's
// data planes, de-interleaving into planar layouts when required.
func fillAudioFrame(f *astiav.Frame, quantized []int16, channels int, format astiav.SampleFormat) error {
	toFloat := func(v int16) float32 { return float32(v) / 32768.0 }

	switch format {
	case astiav.SampleFormatFltp:
		for ch := 0; ch < channels; ch++ {
			plane, err := f.Data().Bytes(ch)
			if err != nil {
				return rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.audio.plane", err)
			}
			for i := 0; i < framesPerAacPacket; i++ {
				putFloat32(plane[i*4:], toFloat(quantized[i*channels+ch]))
			}
		}
	case astiav.SampleFormatFlt:
		plane, err := f.Data().Bytes(0)
		if err != nil {
			return rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.audio.plane", err)
		}
		for i, q := range quantized {
			putFloat32(plane[i*4:], toFloat(q))
		}
	case astiav.SampleFormatS16:
		plane, err := f.Data().Bytes(0)
		if err != nil {
			return rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.audio.plane", err)
		}
		for i, q := range quantized {
			binary.LittleEndian.PutUint16(plane[i*2:], uint16(q))
		}
	case astiav.SampleFormatS16p:
		for ch := 0; ch < channels; ch++ {
			plane, err := f.Data().Bytes(ch)
			if err != nil {
				return rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.audio.plane", err)
			}
			for i := 0; i < framesPerAacPacket; i++ {
				binary.LittleEndian.PutUint16(plane[i*2:], uint16(quantized[i*channels+ch]))
			}
		}
	default:
		return rerrors.NewStartupError(rerrors.FormatNotSupported, "encoder.audio.fill_frame", fmt.Errorf("unsupported AAC sample format %v", format))
	}
	return nil
}

func putFloat32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}
