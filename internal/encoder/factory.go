package encoder

import (
	"fmt"
	"runtime"

	astiav "github.com/asticode/go-astiav"

	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/logger"
)

// hardwareCandidates lists, in try-order, the hardware H.264 encoder names
// plausible on the running platform. Per spec §4.C3 "Selection", the
// orchestrator never sees which one wins.
func hardwareCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"h264_videotoolbox"}
	case "windows":
		return []string{"h264_nvenc", "h264_qsv", "h264_amf"}
	default:
		return []string{"h264_nvenc", "h264_qsv"}
	}
}

// NewVideoEncoder opens a video encoder for cfg, preferring a hardware
// encoder and falling back to libx264 on any failure, logging the reason.
func NewVideoEncoder(cfg VideoConfig) (*VideoEncoder, error) {
	for _, name := range hardwareCandidates() {
		codec := astiav.FindEncoderByName(name)
		if codec == nil {
			continue
		}
		enc, err := newVideoEncoder(codec, cfg, true)
		if err == nil {
			logger.Info("video encoder selected", "name", name, "hardware", true)
			return enc, nil
		}
		logger.Warn("hardware video encoder unavailable, falling back", "name", name, "reason", err)
	}

	codec := astiav.FindEncoder(astiav.CodecIDH264)
	if codec == nil {
		return nil, rerrors.NewStartupError(rerrors.EncoderInit, "encoder.video.factory", fmt.Errorf("no H.264 encoder registered (libx264 missing)"))
	}
	enc, err := newVideoEncoder(codec, cfg, false)
	if err != nil {
		return nil, err
	}
	logger.Info("video encoder selected", "name", enc.Name(), "hardware", false)
	return enc, nil
}
