package engine

import (
	"time"

	"github.com/alxayo/go-broadcaster/internal/bitstream"
	"github.com/alxayo/go-broadcaster/internal/capture"
	"github.com/alxayo/go-broadcaster/internal/logger"
	"github.com/alxayo/go-broadcaster/internal/media"
	"github.com/alxayo/go-broadcaster/internal/metrics"
	"github.com/alxayo/go-broadcaster/internal/pixconv"
	"github.com/alxayo/go-broadcaster/internal/resources"
	"github.com/alxayo/go-broadcaster/internal/rtmp/client"
)

// streamWorker runs the stream-loop hot path described in spec §4.C9: at
// frame_interval = 1/fps, drain a video frame, NV12-convert and encode it,
// frame it as an FLV video tag, drain whatever audio has mixed since the
// last tick and frame each encoded chunk as an FLV audio tag, and enqueue
// every tag as a WirePacket on the RTMP client. It owns no lock of its own;
// it is the only goroutine that touches the encoders and capture channels
// for the lifetime of one stream, so none is needed.
type streamWorker struct {
	cfg       resources.Config
	resources *resources.Manager
	metrics   *metrics.Collector

	shouldStop <-chan struct{}
	done       chan<- struct{}
	result     chan<- StopReason

	streamStart time.Time

	videoSequenceHeaderSent bool
	audioSequenceHeaderSent bool
	lastConnGeneration      uint64

	haveLastFrame    bool
	lastFrame        capture.RawVideoFrame
	framesDuplicated uint64
}

func (w *streamWorker) run() {
	defer close(w.done)

	res := w.resources.Resources()
	w.streamStart = time.Now()
	if res.RTMPClient != nil {
		w.lastConnGeneration = res.RTMPClient.ConnectGeneration()
	}

	interval := time.Second / time.Duration(w.cfg.VideoFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("stream worker starting", "fps", w.cfg.VideoFPS, "interval", interval)

	for {
		select {
		case <-w.shouldStop:
			logger.Info("stream worker stopping on request")
			return
		case <-ticker.C:
		}

		stopped, reason := w.tick(res)
		if stopped {
			logger.Warn("stream worker stopping itself", "reason", reason.String())
			select {
			case w.result <- reason:
			default:
			}
			return
		}
	}
}

// tick runs exactly one iteration of the per-frame algorithm. It returns
// (true, reason) if the worker must stop itself (RTMP client failed after
// exhausting its reconnects, capture disconnected, or the encoder failed
// irrecoverably).
func (w *streamWorker) tick(res resources.Resources) (bool, StopReason) {
	if stopped, reason := w.checkNetworkState(res); stopped {
		return true, reason
	}
	w.observeReconnect(res)

	elapsed := time.Since(w.streamStart)
	ptsHundredNs := (elapsed / 100).Nanoseconds()
	elapsedMs := uint32(elapsed / time.Millisecond)

	frame, stopped := w.nextVideoFrame(res)
	if stopped {
		return true, StopCaptureError
	}

	if err := w.processVideo(res, frame, ptsHundredNs, elapsedMs); err != nil {
		logger.Error("video encode failed, stopping stream", "error", err)
		w.metrics.RecordEncodeDrop()
		return true, StopEncoderError
	}

	if err := w.processAudio(res, elapsedMs); err != nil {
		logger.Error("audio encode failed, stopping stream", "error", err)
		w.metrics.RecordEncodeDrop()
		return true, StopEncoderError
	}

	return false, StopUserRequested
}

// checkNetworkState observes the RTMP client's connection state once per
// tick. Once its reconnect/backoff policy gives up (spec §4.C2), the
// client reports StateFailed; the worker stops itself so the engine can
// surface that as stop reason NetworkLost (spec §7) rather than staying
// Live against a dead connection.
func (w *streamWorker) checkNetworkState(res resources.Resources) (bool, StopReason) {
	if res.RTMPClient == nil {
		return false, 0
	}
	if res.RTMPClient.State().Kind == client.StateFailed {
		return true, StopNetworkLost
	}
	return false, 0
}

// observeReconnect notices a change in the RTMP client's connect
// generation (i.e. a successful reconnect happened since the last tick)
// and re-latches the sequence headers, forcing the next video frame to be
// a keyframe, so the first packets sent after a reconnect are the AVC
// sequence header followed by a keyframe (spec §4.C2, §8 scenario 3).
func (w *streamWorker) observeReconnect(res resources.Resources) {
	if res.RTMPClient == nil {
		return
	}
	gen := res.RTMPClient.ConnectGeneration()
	if gen == w.lastConnGeneration {
		return
	}
	w.lastConnGeneration = gen
	if w.videoSequenceHeaderSent || w.audioSequenceHeaderSent {
		logger.Info("rtmp client reconnected, resending sequence headers", "generation", gen)
	}
	w.videoSequenceHeaderSent = false
	w.audioSequenceHeaderSent = false
	if res.VideoEncoder != nil {
		res.VideoEncoder.ForceKeyframe()
	}
}

// nextVideoFrame drains one frame, duplicating the last seen frame when the
// capture source has nothing ready yet. stopped is true only when the
// channel has been closed (capture disconnected).
func (w *streamWorker) nextVideoFrame(res resources.Resources) (capture.RawVideoFrame, bool) {
	select {
	case frame, ok := <-res.FrameRx:
		if !ok {
			return capture.RawVideoFrame{}, true
		}
		w.lastFrame = frame
		w.haveLastFrame = true
		return frame, false
	default:
	}

	if !w.haveLastFrame {
		// No frame has ever arrived; wait for the first one rather than
		// duplicating zero-value data.
		frame, ok := <-res.FrameRx
		if !ok {
			return capture.RawVideoFrame{}, true
		}
		w.lastFrame = frame
		w.haveLastFrame = true
		return frame, false
	}

	w.framesDuplicated++
	if w.framesDuplicated%100 == 0 {
		logger.Debug("duplicating last video frame", "count", w.framesDuplicated)
	}
	return w.lastFrame, false
}

func (w *streamWorker) processVideo(res resources.Resources, frame capture.RawVideoFrame, ptsHundredNs int64, elapsedMs uint32) error {
	nv12, err := pixconv.BGRAToNV12(frame.Data, frame.Width, frame.Height, frame.Stride)
	if err != nil {
		return err
	}

	pkt, err := res.VideoEncoder.Encode(nv12, ptsHundredNs)
	if err != nil {
		return err
	}
	if pkt == nil {
		return nil
	}

	if !w.videoSequenceHeaderSent {
		if headers, ok := res.VideoEncoder.Headers(); ok {
			if err := w.sendVideoSequenceHeader(res, headers); err != nil {
				logger.Warn("failed to build video sequence header", "error", err)
			} else {
				w.videoSequenceHeaderSent = true
			}
		}
	}

	nals := bitstream.ParseAnnexB(pkt.Data)
	payload := bitstream.NalsToAVCC(bitstream.FilterParameterSets(nals))
	tag := bitstream.BuildFlvVideoTag(payload, pkt.IsKeyframe, false, 0)
	wp := bitstream.VideoTagToWirePacket(tag, elapsedMs, pkt.IsKeyframe, false)
	w.enqueue(res, wp)

	w.metrics.RecordFrame()
	return nil
}

func (w *streamWorker) sendVideoSequenceHeader(res resources.Resources, headers []byte) error {
	nals := bitstream.ParseAnnexB(headers)
	sps, err := bitstream.FirstParameterSet(nals, media.NalUnitSPS)
	if err != nil {
		return err
	}
	pps, err := bitstream.FirstParameterSet(nals, media.NalUnitPPS)
	if err != nil {
		return err
	}
	cfg, err := bitstream.BuildAvcDecoderConfig(sps, pps)
	if err != nil {
		return err
	}
	tag := bitstream.BuildFlvVideoTag(cfg.Bytes, true, true, 0)
	wp := bitstream.VideoTagToWirePacket(tag, 0, true, true)
	w.enqueue(res, wp)
	return nil
}

func (w *streamWorker) processAudio(res resources.Resources, elapsedMs uint32) error {
	for {
		var chunk *media.AudioChunk
		select {
		case c, ok := <-res.AudioRx:
			if !ok {
				return nil
			}
			chunk = c
		default:
			return nil
		}

		pkt, err := res.AudioEncoder.Encode(chunk.Data, chunk.PTS100ns)
		if err != nil {
			return err
		}
		if pkt == nil {
			continue
		}

		if !w.audioSequenceHeaderSent {
			cfg := res.AudioEncoder.Config()
			asc, err := bitstream.BuildAudioSpecificConfig(cfg.SampleRate, cfg.Channels)
			if err != nil {
				logger.Warn("failed to build audio sequence header", "error", err)
			} else {
				tag := bitstream.BuildFlvAudioTag(asc, true)
				wp := bitstream.AudioTagToWirePacket(tag, 0, true)
				w.enqueue(res, wp)
				w.audioSequenceHeaderSent = true
			}
		}

		tag := bitstream.BuildFlvAudioTag(pkt.Data, false)
		wp := bitstream.AudioTagToWirePacket(tag, elapsedMs, false)
		w.enqueue(res, wp)
	}
}

func (w *streamWorker) enqueue(res resources.Resources, wp *media.WirePacket) {
	if res.RTMPClient == nil {
		return
	}
	if !res.RTMPClient.Send(wp) {
		w.metrics.RecordNetworkDrop()
		return
	}
	w.metrics.RecordBytesSent(uint64(len(wp.Payload)))
}
