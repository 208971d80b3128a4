// Package media defines the plain data types that flow through the
// broadcaster pipeline between capture, encoding, bitstream framing, and
// the RTMP client. These are deliberately bare structs in the same style
// as chunk.Message: owned byte buffers plus the metadata needed by the
// next stage, no behavior attached.
package media

import "time"

// AudioSourceKind identifies which capture path produced an AudioChunk.
type AudioSourceKind uint8

const (
	AudioSourceMic AudioSourceKind = iota
	AudioSourceLoopback
	AudioSourceMixed
)

// VideoFrame is an owned NV12 frame: Y plane of width*height bytes followed
// by an interleaved UV plane of width*height/2 bytes. Invariant:
// len(Data) == Width*Height*3/2.
type VideoFrame struct {
	Data        []byte
	Width       int
	Height      int
	CaptureTime time.Time // monotonic capture wall-clock
	PTS100ns    int64     // derived at stream-loop time, not capture time
	Sequence    uint64
}

// AudioChunk is owned interleaved stereo float32 PCM at 48 kHz. Invariant:
// len(Data) is a multiple of the channel count (one float32 sample per
// channel per frame).
type AudioChunk struct {
	Data     []float32
	Sequence uint64
	PTS100ns int64
	Source   AudioSourceKind
}

// FrameType classifies an encoded video packet per H.264 slice typing.
type FrameType uint8

const (
	FrameTypeI FrameType = iota
	FrameTypeP
	FrameTypeB
)

// EncodedVideoPacket holds Annex-B H.264 bytes produced by the video
// encoder facade.
type EncodedVideoPacket struct {
	Data       []byte
	PTS100ns   int64
	DTS100ns   int64
	IsKeyframe bool
	FrameType  FrameType
}

// EncodedAudioPacket holds a raw AAC access unit (no ADTS header).
type EncodedAudioPacket struct {
	Data     []byte
	PTS100ns int64
}

// NalUnitType classifies a parsed H.264 NAL unit.
type NalUnitType uint8

const (
	NalUnitNonIdrSlice NalUnitType = iota
	NalUnitIdrSlice
	NalUnitSEI
	NalUnitSPS
	NalUnitPPS
	NalUnitAUD
	NalUnitOther
)

// NalUnit is a single parsed NAL unit with its Annex-B start code removed.
// Invariant: the low 5 bits of Payload[0] encode the NAL unit type.
type NalUnit struct {
	Type    NalUnitType
	Payload []byte
}

// AvcDecoderConfig is an AVCDecoderConfigurationRecord (ISO/IEC 14496-15)
// derived from the first SPS+PPS pair seen from the encoder.
type AvcDecoderConfig struct {
	Bytes []byte // 11 fixed header bytes + SPS + PPS, fully assembled
}

// WirePacketKind distinguishes the two RTMP message types this broadcaster
// ever sends.
type WirePacketKind uint8

const (
	WirePacketVideo WirePacketKind = iota
	WirePacketAudio
)

// WirePacket is an FLV-tag payload ready to hand to the RTMP client.
type WirePacket struct {
	Payload          []byte
	TimestampMs      uint32
	Kind             WirePacketKind
	IsKeyframe       bool
	IsSequenceHeader bool
}

// CaptureSourceType distinguishes the two capture source shapes spec §6's
// id format recognizes.
type CaptureSourceType uint8

const (
	CaptureSourceMonitor CaptureSourceType = iota
	CaptureSourceWindow
)

// CaptureSource describes one enumerable capture target for the
// GetCaptureSources command/event pair.
type CaptureSource struct {
	ID     string // "monitor:<i64>" or "window:<i64>"
	Name   string
	Type   CaptureSourceType
	Width  int
	Height int
}

// AudioDeviceType distinguishes microphone (input) from loopback-capable
// (output) audio devices.
type AudioDeviceType uint8

const (
	AudioDeviceInput AudioDeviceType = iota
	AudioDeviceOutput
)

// AudioDevice describes one enumerable audio device for the
// GetAudioDevices command/event pair.
type AudioDevice struct {
	ID        string
	Name      string
	Type      AudioDeviceType
	IsDefault bool
}
