package bitstream

import (
	"encoding/binary"

	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/media"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// BuildAvcDecoderConfig assembles an AVCDecoderConfigurationRecord (ISO/IEC
// 14496-15 §5.2.4.1) from the first SPS+PPS pair the video encoder emits.
// Layout: 0x01,sps[1],sps[2],sps[3], 0xFF, 0xE1, u16(len(sps)),sps, 0x01,
// u16(len(pps)),pps. Fails if sps is shorter than 4 bytes.
func BuildAvcDecoderConfig(sps, pps []byte) (media.AvcDecoderConfig, error) {
	if len(sps) < 4 {
		return media.AvcDecoderConfig{}, rerrors.NewInvalidInputError("bitstream.build_avc_decoder_config",
			errShortSPS(len(sps)))
	}

	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out, 0x01, sps[1], sps[2], sps[3])
	out = append(out, 0xFF) // reserved(6=1) | lengthSizeMinusOne=3
	out = append(out, 0xE1) // reserved(3=1) | numSPS=1

	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], uint16(len(sps)))
	out = append(out, u16[:]...)
	out = append(out, sps...)

	out = append(out, 0x01) // numPPS=1
	binary.BigEndian.PutUint16(u16[:], uint16(len(pps)))
	out = append(out, u16[:]...)
	out = append(out, pps...)

	return media.AvcDecoderConfig{Bytes: out}, nil
}

type errShortSPS int

func (e errShortSPS) Error() string { return "sps shorter than 4 bytes" }

// BuildAudioSpecificConfig builds the AAC AudioSpecificConfig byte sequence
// used as the RTMP audio sequence header payload, per spec Open Question
// (a): AAC-LC, the sample rate/channel count the audio encoder is
// configured with.
func BuildAudioSpecificConfig(sampleRate, channelCount int) ([]byte, error) {
	cfg := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
	}
	b, err := cfg.Marshal()
	if err != nil {
		return nil, rerrors.NewInvalidInputError("bitstream.build_audio_specific_config", err)
	}
	return b, nil
}
