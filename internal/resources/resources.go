package resources

import (
	"fmt"
	"sync"

	"github.com/alxayo/go-broadcaster/internal/capture"
	"github.com/alxayo/go-broadcaster/internal/encoder"
	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/logger"
	"github.com/alxayo/go-broadcaster/internal/media"
	"github.com/alxayo/go-broadcaster/internal/metrics"
	"github.com/alxayo/go-broadcaster/internal/mixer"
	"github.com/alxayo/go-broadcaster/internal/rtmp/client"
)

// Config is the subset of stream configuration the resource manager's
// phases consume, mirroring the Rust original's StreamConfig fields that
// state.rs actually reads.
type Config struct {
	VideoSourceID string
	VideoWidth    int
	VideoHeight   int
	VideoFPS      int

	MicDeviceID    string // empty means no microphone input
	MicVolume      float32
	SystemVolume   float32

	VideoBitrateKbps uint32
	AudioBitrateKbps uint32

	RTMPURL   string
	StreamKey string
}

// setDefaults fills zero-valued fields with spec §4.C3/§6's stated
// defaults, mirroring the Rust original's StreamConfig::default().
func (c *Config) setDefaults() {
	if c.VideoWidth <= 0 {
		c.VideoWidth = 1920
	}
	if c.VideoHeight <= 0 {
		c.VideoHeight = 1080
	}
	if c.VideoFPS <= 0 {
		c.VideoFPS = 60
	}
	if c.VideoBitrateKbps == 0 {
		c.VideoBitrateKbps = 6000
	}
	if c.AudioBitrateKbps == 0 {
		c.AudioBitrateKbps = 128
	}
}

// Resources is the single aggregate of everything a phase may have
// constructed. Every field is optional (nil/zero) until its owning phase
// has run, exactly like the Rust original's Option<T> fields.
type Resources struct {
	VideoSource capture.VideoSource
	FrameRx     <-chan capture.RawVideoFrame

	MicSource      capture.AudioSource
	LoopbackSource capture.AudioSource
	Mixer          *mixer.Mixer
	MicInput       *mixer.Input // nil unless Config.MicDeviceID was set
	SystemInput    *mixer.Input
	AudioRx        <-chan *media.AudioChunk

	VideoEncoder *encoder.VideoEncoder
	AudioEncoder *encoder.AudioEncoder

	RTMPClient *client.Client
}

// Manager owns one Resources aggregate behind a mutex and drives it
// through the phased init/rollback sequence spec §4.C8 describes.
type Manager struct {
	metrics *metrics.Collector

	mu           sync.Mutex
	resources    Resources
	currentPhase *Phase
}

// NewManager creates an empty, unstarted resource manager. metrics may be
// nil (capture-drop counting is then skipped).
func NewManager(m *metrics.Collector) *Manager {
	return &Manager{metrics: m}
}

// Resources returns the manager's current aggregate under its mutex;
// callers must not retain the returned value across later phase changes.
func (rm *Manager) Resources() Resources {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.resources
}

// Initialize walks phases forward from InitCapture through targetPhase
// inclusive. On the first failing phase it returns the error immediately,
// leaving currentPhase pointing at the failed phase so Rollback() knows
// where to start. onPhase, if non-nil, is called with each phase just
// before it runs, letting a caller (the engine) surface per-phase
// Starting(phase) progress (spec §4.C9) instead of one opaque step.
func (rm *Manager) Initialize(cfg Config, targetPhase Phase, onPhase func(Phase)) error {
	cfg.setDefaults()
	phase := PhaseInitCapture
	for {
		rm.mu.Lock()
		p := phase
		rm.currentPhase = &p
		rm.mu.Unlock()

		if onPhase != nil {
			onPhase(phase)
		}
		logger.Info("initializing phase", "phase", phase.String())
		if err := rm.initPhase(cfg, phase); err != nil {
			return err
		}

		if phase == targetPhase {
			return nil
		}
		next, ok := phase.next()
		if !ok {
			return rerrors.NewStartupError(rerrors.EncoderInit, "resources.initialize", fmt.Errorf("no phase follows %s", phase))
		}
		phase = next
	}
}

func (rm *Manager) initPhase(cfg Config, phase Phase) error {
	switch phase {
	case PhaseInitCapture:
		return rm.initCapture(cfg)
	case PhaseInitAudio:
		return rm.initAudio(cfg)
	case PhaseInitEncoder:
		return rm.initEncoder(cfg)
	case PhaseConnectRtmp:
		return rm.initRTMP(cfg)
	case PhaseStartTransmission:
		logger.Debug("transmission ready")
		return nil
	default:
		return rerrors.NewStartupError(rerrors.EncoderInit, "resources.init_phase", fmt.Errorf("unknown phase %v", phase))
	}
}

func (rm *Manager) initCapture(cfg Config) error {
	src, err := capture.NewPatternVideoSource(cfg.VideoSourceID, cfg.VideoWidth, cfg.VideoHeight, cfg.VideoFPS, rm.metrics)
	if err != nil {
		return rerrors.NewStartupError(rerrors.SourceNotFound, "resources.init_capture", err)
	}
	frameRx, err := src.Start()
	if err != nil {
		return rerrors.NewStartupError(rerrors.SourceNotFound, "resources.init_capture", err)
	}

	rm.mu.Lock()
	rm.resources.VideoSource = src
	rm.resources.FrameRx = frameRx
	rm.mu.Unlock()

	logger.Debug("capture initialized")
	return nil
}

func (rm *Manager) initAudio(cfg Config) error {
	loopback, err := capture.NewLoopback()
	if err != nil {
		return rerrors.NewStartupError(rerrors.DeviceNotFound, "resources.init_audio", err)
	}
	loopbackRx, err := loopback.Start()
	if err != nil {
		return rerrors.NewStartupError(rerrors.DeviceNotFound, "resources.init_audio", err)
	}

	rm.mu.Lock()
	rm.resources.LoopbackSource = loopback
	rm.mu.Unlock()

	systemInput := mixer.NewInput(loopbackRx, media.AudioSourceLoopback, cfg.SystemVolume)
	inputs := []*mixer.Input{systemInput}

	var micInput *mixer.Input
	if cfg.MicDeviceID != "" {
		mic, err := capture.NewMicrophone(cfg.MicDeviceID)
		if err != nil {
			return rerrors.NewStartupError(rerrors.DeviceNotFound, "resources.init_audio", err)
		}
		micRx, err := mic.Start()
		if err != nil {
			return rerrors.NewStartupError(rerrors.DeviceNotFound, "resources.init_audio", err)
		}
		rm.mu.Lock()
		rm.resources.MicSource = mic
		rm.mu.Unlock()
		micInput = mixer.NewInput(micRx, media.AudioSourceMic, cfg.MicVolume)
		inputs = append(inputs, micInput)
	}

	mx := mixer.New(inputs, 8)
	mx.Start()

	rm.mu.Lock()
	rm.resources.Mixer = mx
	rm.resources.SystemInput = systemInput
	rm.resources.MicInput = micInput
	rm.resources.AudioRx = mx.Output()
	rm.mu.Unlock()

	logger.Debug("audio initialized")
	return nil
}

func (rm *Manager) initEncoder(cfg Config) error {
	rm.mu.Lock()
	src := rm.resources.VideoSource
	rm.mu.Unlock()

	width, height := cfg.VideoWidth, cfg.VideoHeight
	if src != nil {
		width, height = src.Dimensions()
	}

	videoCfg := encoder.DefaultVideoConfig()
	videoCfg.Width = width
	videoCfg.Height = height
	videoCfg.BitrateKbps = cfg.VideoBitrateKbps

	videoEnc, err := encoder.NewVideoEncoder(videoCfg)
	if err != nil {
		return err
	}

	audioCfg := encoder.DefaultAudioConfig()
	audioCfg.BitrateKbps = cfg.AudioBitrateKbps
	audioEnc, err := encoder.NewAudioEncoder(audioCfg)
	if err != nil {
		videoEnc.Close()
		return err
	}

	rm.mu.Lock()
	rm.resources.VideoEncoder = videoEnc
	rm.resources.AudioEncoder = audioEnc
	rm.mu.Unlock()

	logger.Debug("encoders initialized")
	return nil
}

func (rm *Manager) initRTMP(cfg Config) error {
	c, err := client.New(client.Config{RTMPURL: cfg.RTMPURL, StreamKey: cfg.StreamKey})
	if err != nil {
		return err
	}
	if _, err := c.Connect(); err != nil {
		return err
	}

	// ConnectRtmp is a blocking phase (spec §4.C8): wait for the client's
	// first connect/publish attempt, including its full reconnect/backoff
	// policy, to resolve one way or the other before this phase returns.
	if err := c.WaitConnected(); err != nil {
		c.Close()
		return err
	}

	rm.mu.Lock()
	rm.resources.RTMPClient = c
	rm.mu.Unlock()

	logger.Debug("rtmp connected")
	return nil
}

// Rollback tears every completed phase down in reverse order, starting
// from the last phase Initialize reached (whether it succeeded or failed).
// Each step is best-effort and idempotent: Rollback may be called more
// than once, or on a manager that was never fully initialized.
func (rm *Manager) Rollback() {
	rm.mu.Lock()
	current := rm.currentPhase
	rm.mu.Unlock()
	if current == nil {
		return
	}

	phase := *current
	for {
		logger.Info("rolling back phase", "phase", phase.String())
		rm.rollbackPhase(phase)
		prev, ok := phase.previous()
		if !ok {
			break
		}
		phase = prev
	}

	rm.mu.Lock()
	rm.currentPhase = nil
	rm.mu.Unlock()
}

func (rm *Manager) rollbackPhase(phase Phase) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	switch phase {
	case PhaseStartTransmission:
		// nothing owned by this phase
	case PhaseConnectRtmp:
		if rm.resources.RTMPClient != nil {
			if err := rm.resources.RTMPClient.Close(); err != nil {
				logger.Warn("rtmp client close failed during rollback", "error", err)
			}
			rm.resources.RTMPClient = nil
		}
	case PhaseInitEncoder:
		if rm.resources.VideoEncoder != nil {
			rm.resources.VideoEncoder.Close()
			rm.resources.VideoEncoder = nil
		}
		if rm.resources.AudioEncoder != nil {
			rm.resources.AudioEncoder.Close()
			rm.resources.AudioEncoder = nil
		}
	case PhaseInitAudio:
		if rm.resources.Mixer != nil {
			rm.resources.Mixer.Stop()
			rm.resources.Mixer = nil
		}
		rm.resources.MicInput = nil
		rm.resources.SystemInput = nil
		if rm.resources.MicSource != nil {
			if err := rm.resources.MicSource.Stop(); err != nil {
				logger.Warn("mic source stop failed during rollback", "error", err)
			}
			rm.resources.MicSource = nil
		}
		if rm.resources.LoopbackSource != nil {
			if err := rm.resources.LoopbackSource.Stop(); err != nil {
				logger.Warn("loopback source stop failed during rollback", "error", err)
			}
			rm.resources.LoopbackSource = nil
		}
		rm.resources.AudioRx = nil
	case PhaseInitCapture:
		if rm.resources.VideoSource != nil {
			rm.resources.VideoSource.Stop()
			rm.resources.VideoSource = nil
		}
		rm.resources.FrameRx = nil
	}
}

// Shutdown tears down every resource the manager currently owns; it is
// the externally-callable equivalent of the Rust original's Drop impl
// (Go has no destructors, so callers must invoke this explicitly, e.g.
// from the engine's stop/cleanup path).
func (rm *Manager) Shutdown() {
	rm.Rollback()
}
