package bitstream

import "github.com/alxayo/go-broadcaster/internal/media"

const (
	avcCodecID     = 0x07
	keyframeMarker = 0x10
	interframeMark = 0x20
	audioCodecTag  = 0xAF // AAC, 44.1kHz(ignored by RTMP)/16-bit/stereo flags packed per FLV spec
)

// BuildFlvVideoTag frames an AVC payload as an FLV video tag body:
// byte0 = FrameType|CodecID(AVC=7), byte1 = AVCPacketType,
// bytes 2..4 = composition time offset (signed 24-bit big-endian), rest = payload.
func BuildFlvVideoTag(payload []byte, isKeyframe, isSequenceHeader bool, ctsI24 int32) []byte {
	out := make([]byte, 0, 5+len(payload))

	byte0 := avcCodecID | interframeMark
	if isKeyframe {
		byte0 = avcCodecID | keyframeMarker
	}
	out = append(out, byte(byte0))

	byte1 := byte(0x01)
	if isSequenceHeader {
		byte1 = 0x00
	}
	out = append(out, byte1)

	out = append(out, byte(ctsI24>>16), byte(ctsI24>>8), byte(ctsI24))
	out = append(out, payload...)
	return out
}

// BuildFlvAudioTag frames an AAC payload as an FLV audio tag body: byte0 is
// the fixed 0xAF SoundFormat byte (AAC, 44.1kHz rate flag, 16-bit, stereo;
// the real rate travels in the AudioSpecificConfig), byte1 is the
// AACPacketType, rest is the payload (raw AAC, or AudioSpecificConfig when
// isSequenceHeader).
func BuildFlvAudioTag(payload []byte, isSequenceHeader bool) []byte {
	out := make([]byte, 0, 2+len(payload))
	out = append(out, audioCodecTag)
	if isSequenceHeader {
		out = append(out, 0x00)
	} else {
		out = append(out, 0x01)
	}
	out = append(out, payload...)
	return out
}

// VideoTagToWirePacket wraps an already-framed FLV video tag as the
// WirePacket the RTMP client sends.
func VideoTagToWirePacket(tag []byte, timestampMs uint32, isKeyframe, isSequenceHeader bool) *media.WirePacket {
	return &media.WirePacket{
		Payload:          tag,
		TimestampMs:      timestampMs,
		Kind:             media.WirePacketVideo,
		IsKeyframe:       isKeyframe,
		IsSequenceHeader: isSequenceHeader,
	}
}

// AudioTagToWirePacket wraps an already-framed FLV audio tag as the
// WirePacket the RTMP client sends.
func AudioTagToWirePacket(tag []byte, timestampMs uint32, isSequenceHeader bool) *media.WirePacket {
	return &media.WirePacket{
		Payload:          tag,
		TimestampMs:      timestampMs,
		Kind:             media.WirePacketAudio,
		IsSequenceHeader: isSequenceHeader,
	}
}
