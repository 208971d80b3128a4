// Package encoder implements the broadcaster's video (C3) and audio (C4)
// encoder facades over go-astiav/FFmpeg, grounded on the teacher pack's
// e1z0-QAnotherRTSP decode/encode plumbing (SendFrame/ReceiveFrame loops,
// Dictionary-based codec options, AllocFrame/AllocPacket lifecycle).
package encoder

import (
	"fmt"

	astiav "github.com/asticode/go-astiav"

	"github.com/alxayo/go-broadcaster/internal/bitstream"
	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/media"
)

// Profile is the H.264 encoding profile, per spec §4.C3 configuration.
type Profile uint8

const (
	ProfileBaseline Profile = iota
	ProfileMain
	ProfileHigh
)

// VideoConfig configures a VideoEncoder. DefaultVideoConfig returns one
// filled with the defaults (1920x1080 @ 60fps, 6000kbps, 2s GOP, High
// profile); NewVideoEncoder uses every field as given and does not replace
// zero values.
type VideoConfig struct {
	Width                int
	Height               int
	FPS                  int
	BitrateKbps          uint32
	KeyframeIntervalSecs int
	Profile              Profile
}

// DefaultVideoConfig returns spec §4.C3's stated default configuration.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Width:                1920,
		Height:               1080,
		FPS:                  60,
		BitrateKbps:          6000,
		KeyframeIntervalSecs: 2,
		Profile:              ProfileHigh,
	}
}

// VideoEncoder is the C3 facade: NV12 in, Annex-B H.264 access units out.
type VideoEncoder struct {
	cfg      VideoConfig
	ctx      *astiav.CodecContext
	frame    *astiav.Frame
	name     string
	hardware bool

	headers []byte // SPS+PPS, Annex-B, captured from the first keyframe

	forceKeyframe bool // set by ForceKeyframe, consumed by the next fillFrame
}

func profileToAstiav(p Profile) astiav.Profile {
	switch p {
	case ProfileBaseline:
		return astiav.ProfileH264Baseline
	case ProfileMain:
		return astiav.ProfileH264Main
	default:
		return astiav.ProfileH264High
	}
}

// newVideoEncoder opens codec against the given encoder, configured per cfg.
// hardware encoders and libx264 both go through this path; only the codec
// and a couple of private options differ.
func newVideoEncoder(codec *astiav.Codec, cfg VideoConfig, hardware bool) (*VideoEncoder, error) {
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, rerrors.NewStartupError(rerrors.EncoderInit, "encoder.video.open", fmt.Errorf("AllocCodecContext(%s) failed", codec.Name()))
	}

	gop := cfg.FPS * cfg.KeyframeIntervalSecs
	ctx.SetWidth(cfg.Width)
	ctx.SetHeight(cfg.Height)
	ctx.SetPixelFormat(astiav.PixelFormatNv12)
	ctx.SetTimeBase(astiav.NewRational(1, cfg.FPS))
	ctx.SetFramerate(astiav.NewRational(cfg.FPS, 1))
	ctx.SetGopSize(gop)
	ctx.SetBitRate(int64(cfg.BitrateKbps) * 1000)
	ctx.SetProfile(profileToAstiav(cfg.Profile))

	opts := astiav.NewDictionary()
	defer opts.Free()
	if !hardware {
		_ = opts.Set("preset", "veryfast", 0)
		_ = opts.Set("tune", "zerolatency", 0)
		_ = opts.Set("x264-params", fmt.Sprintf("scenecut=0:keyint=%d:min-keyint=%d", gop, gop), 0)
	}

	if err := ctx.Open(codec, opts); err != nil {
		ctx.Free()
		return nil, rerrors.NewStartupError(rerrors.EncoderInit, "encoder.video.open", err)
	}

	return &VideoEncoder{
		cfg:      cfg,
		ctx:      ctx,
		frame:    astiav.AllocFrame(),
		name:     codec.Name(),
		hardware: hardware,
	}, nil
}

// Name implements the facade's name() accessor.
func (e *VideoEncoder) Name() string { return e.name }

// IsHardwareAccelerated implements the facade's is_hardware_accelerated().
func (e *VideoEncoder) IsHardwareAccelerated() bool { return e.hardware }

// Headers returns the SPS+PPS Annex-B bytes captured from the first
// keyframe, or (nil, false) if no keyframe has been produced yet.
func (e *VideoEncoder) Headers() ([]byte, bool) {
	if e.headers == nil {
		return nil, false
	}
	return e.headers, true
}

// ForceKeyframe requests that the next frame passed to Encode be coded as
// an IDR keyframe, regardless of the configured GOP. The stream worker
// calls this after a reconnect (spec §4.C2: "resends the AVC sequence
// header + first keyframe") so the publish resumes on a decodable frame.
func (e *VideoEncoder) ForceKeyframe() {
	e.forceKeyframe = true
}

// Encode implements encode(nv12, pts_100ns) -> Option<EncodedVideoPacket>.
// A nil packet with a nil error is the normal "encoder is buffering" case.
func (e *VideoEncoder) Encode(nv12 []byte, pts100ns int64) (*media.EncodedVideoPacket, error) {
	want := e.cfg.Width * e.cfg.Height * 3 / 2
	if len(nv12) != want {
		return nil, rerrors.NewInvalidInputError("encoder.video.encode", fmt.Errorf("nv12 buffer is %d bytes, want %d", len(nv12), want))
	}

	if err := e.fillFrame(nv12, pts100ns); err != nil {
		return nil, err
	}
	if err := e.ctx.SendFrame(e.frame); err != nil {
		return nil, rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.video.encode", err)
	}
	return e.receiveOne()
}

// Flush implements flush() -> []EncodedVideoPacket: signal end-of-stream
// and drain every remaining buffered packet.
func (e *VideoEncoder) Flush() ([]*media.EncodedVideoPacket, error) {
	if err := e.ctx.SendFrame(nil); err != nil {
		return nil, rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.video.flush", err)
	}
	var out []*media.EncodedVideoPacket
	for {
		pkt, err := e.receiveOne()
		if err != nil {
			return out, err
		}
		if pkt == nil {
			return out, nil
		}
		out = append(out, pkt)
	}
}

func (e *VideoEncoder) fillFrame(nv12 []byte, pts100ns int64) error {
	f := e.frame
	f.Unref()
	f.SetWidth(e.cfg.Width)
	f.SetHeight(e.cfg.Height)
	f.SetPixelFormat(astiav.PixelFormatNv12)
	if err := f.AllocBuffer(1); err != nil {
		return rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.video.alloc_frame", err)
	}
	if e.forceKeyframe {
		f.SetPictureType(astiav.PictureTypeI)
		e.forceKeyframe = false
	}

	ySize := e.cfg.Width * e.cfg.Height
	yPlane, err := f.Data().Bytes(0)
	if err != nil {
		return rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.video.y_plane", err)
	}
	copy(yPlane, nv12[:ySize])
	uvPlane, err := f.Data().Bytes(1)
	if err != nil {
		return rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.video.uv_plane", err)
	}
	copy(uvPlane, nv12[ySize:])

	ptsTicks := pts100ns * int64(e.cfg.FPS) / 10_000_000
	f.SetPts(ptsTicks)
	return nil
}

func (e *VideoEncoder) receiveOne() (*media.EncodedVideoPacket, error) {
	pkt := astiav.AllocPacket()
	defer pkt.Free()

	if err := e.ctx.ReceivePacket(pkt); err != nil {
		if errIsAgainOrEOF(err) {
			return nil, nil
		}
		return nil, rerrors.NewRuntimeError(rerrors.EncodeFailed, "encoder.video.receive", err)
	}
	defer pkt.Unref()

	data := append([]byte(nil), pkt.Data()...)
	nals := bitstream.ParseAnnexB(data)

	frameType := media.FrameTypeP
	isKeyframe := false
	for _, n := range nals {
		if n.Type == media.NalUnitIdrSlice {
			isKeyframe = true
			frameType = media.FrameTypeI
			break
		}
	}

	if e.headers == nil && isKeyframe {
		e.captureHeaders(nals)
	}

	tb := e.ctx.TimeBase()
	dts100ns := rescaleToHundredNanos(pkt.Dts(), tb)

	return &media.EncodedVideoPacket{
		Data:       data,
		PTS100ns:   rescaleToHundredNanos(pkt.Pts(), tb),
		DTS100ns:   dts100ns,
		IsKeyframe: isKeyframe,
		FrameType:  frameType,
	}, nil
}

func (e *VideoEncoder) captureHeaders(nals []media.NalUnit) {
	sps, errSPS := bitstream.FirstParameterSet(nals, media.NalUnitSPS)
	pps, errPPS := bitstream.FirstParameterSet(nals, media.NalUnitPPS)
	if errSPS != nil || errPPS != nil {
		return
	}
	hdr := make([]byte, 0, len(sps)+len(pps)+8)
	hdr = append(hdr, 0, 0, 0, 1)
	hdr = append(hdr, sps...)
	hdr = append(hdr, 0, 0, 0, 1)
	hdr = append(hdr, pps...)
	e.headers = hdr
}

func rescaleToHundredNanos(ticks int64, tb astiav.Rational) int64 {
	if tb.Den() == 0 {
		return 0
	}
	return ticks * 10_000_000 * int64(tb.Num()) / int64(tb.Den())
}

// Close releases the encoder's FFmpeg resources.
func (e *VideoEncoder) Close() {
	if e.frame != nil {
		e.frame.Free()
		e.frame = nil
	}
	if e.ctx != nil {
		e.ctx.Free()
		e.ctx = nil
	}
}
