package engine

import (
	"sync"
	"time"

	"github.com/alxayo/go-broadcaster/internal/capture"
	"github.com/alxayo/go-broadcaster/internal/logger"
	"github.com/alxayo/go-broadcaster/internal/metrics"
	"github.com/alxayo/go-broadcaster/internal/resources"
)

const commandTimeout = 100 * time.Millisecond

// Engine is the broadcaster's orchestrator: one command/event pump plus,
// while Live, one stream-worker goroutine. All mutable state is behind mu;
// the stream worker reads cfg/resources only through the resource manager,
// which carries its own lock.
type Engine struct {
	commandRx <-chan Command
	eventTx   chan<- Event

	mu      sync.RWMutex
	state   State
	cfg     resources.Config
	metrics *metrics.Collector

	resourceMgr *resources.Manager

	workerShouldStop chan struct{}
	workerDone       chan struct{}
	workerResult     chan StopReason // non-nil only while a stream worker owns it
}

// New creates an Engine that reads commands from commandRx and writes
// events to eventTx. Both are expected to be buffered (spec §5: commands
// 64, events 256); New does not create or own the channels.
func New(commandRx <-chan Command, eventTx chan<- Event) *Engine {
	return &Engine{
		commandRx:   commandRx,
		eventTx:     eventTx,
		state:       State{Kind: StateIdle},
		metrics:     metrics.New(0, 0),
		resourceMgr: resources.NewManager(nil),
	}
}

// Run blocks, pumping commands until Shutdown is received or the command
// channel closes. Mirrors the Rust original's Engine::run: a 100ms
// recv-with-timeout loop that emits a metrics snapshot on every timeout
// while Live.
func (e *Engine) Run() {
	logger.Info("engine starting")
	e.sendEvent(Event{Kind: EvtReady})

	timer := time.NewTimer(commandTimeout)
	defer timer.Stop()

	for {
		timer.Reset(commandTimeout)
		resultCh := e.workerResultChan()
		select {
		case cmd, ok := <-e.commandRx:
			if !ok {
				logger.Info("command channel disconnected, shutting down")
				e.stopStream(StopUserRequested)
				return
			}
			if !e.handleCommand(cmd) {
				logger.Info("engine stopped")
				return
			}
		case reason, ok := <-resultCh:
			// resultCh is nil while no stream worker is running, which
			// blocks this case forever rather than firing spuriously.
			if ok {
				e.handleWorkerStopped(reason)
			}
		case <-timer.C:
			if e.State().Kind == StateLive {
				e.emitMetrics()
			}
		}
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// handleCommand dispatches one command. Returns false if the engine should
// stop running (only CmdShutdown does this).
func (e *Engine) handleCommand(cmd Command) bool {
	switch cmd.Kind {
	case CmdStart:
		e.startStream(cmd.Config)
	case CmdStop:
		e.stopStream(StopUserRequested)
	case CmdSetMicVolume:
		e.setMicVolume(cmd.Volume)
	case CmdSetSystemVolume:
		e.setSystemVolume(cmd.Volume)
	case CmdSetMicMuted:
		e.setMicMuted(cmd.Muted)
	case CmdSetSystemMuted:
		e.setSystemMuted(cmd.Muted)
	case CmdGetCaptureSources:
		e.sendCaptureSources()
	case CmdGetAudioDevices:
		e.sendAudioDevices()
	case CmdGetState:
		e.sendState()
	case CmdShutdown:
		e.stopStream(StopUserRequested)
		e.sendEvent(Event{Kind: EvtShutdown})
		return false
	}
	return true
}

// startStream is idempotent: ignored while already Starting or Live.
func (e *Engine) startStream(cfg resources.Config) {
	if k := e.State().Kind; k == StateStarting || k == StateLive {
		logger.Debug("already starting or live, ignoring start command")
		return
	}

	logger.Info("starting stream")

	onPhase := func(phase resources.Phase) {
		e.transitionTo(State{Kind: StateStarting, StartPhase: phase})
	}
	if err := e.resourceMgr.Initialize(cfg, resources.PhaseStartTransmission, onPhase); err != nil {
		logger.Error("stream start failed", "error", err)
		e.resourceMgr.Rollback()
		e.transitionTo(State{Kind: StateError, Message: err.Error(), Recoverable: true})
		return
	}

	e.mu.Lock()
	e.cfg = cfg
	e.metrics = metrics.New(float32(cfg.VideoFPS), cfg.VideoBitrateKbps)
	e.metrics.Start()
	e.mu.Unlock()

	e.transitionTo(State{Kind: StateLive})
	e.startStreamWorker(cfg)
	logger.Info("stream started successfully")
}

func (e *Engine) startStreamWorker(cfg resources.Config) {
	shouldStop := make(chan struct{})
	done := make(chan struct{})
	result := make(chan StopReason, 1)

	e.mu.Lock()
	e.workerShouldStop = shouldStop
	e.workerDone = done
	e.workerResult = result
	e.mu.Unlock()

	w := &streamWorker{
		cfg:        cfg,
		resources:  e.resourceMgr,
		metrics:    e.metricsSnapshot(),
		shouldStop: shouldStop,
		done:       done,
		result:     result,
	}
	go w.run()
}

func (e *Engine) metricsSnapshot() *metrics.Collector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

func (e *Engine) workerResultChan() chan StopReason {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workerResult
}

// handleWorkerStopped finishes tearing down a stream that stopped itself
// (lost network, capture disconnect or unrecoverable encoder error) rather than being
// stopped by a command. Only called from Run's single-threaded select
// loop, so it never races with stopStream.
func (e *Engine) handleWorkerStopped(reason StopReason) {
	logger.Warn("stream worker stopped itself", "reason", reason.String())

	e.mu.Lock()
	e.workerShouldStop, e.workerDone, e.workerResult = nil, nil, nil
	e.mu.Unlock()

	e.transitionTo(State{Kind: StateStopping, StopReason: reason})
	e.metricsSnapshot().Stop()
	e.resourceMgr.Shutdown()
	e.transitionTo(State{Kind: StateIdle})
}

// stopStream is idempotent: ignored while already Idle or Stopping.
func (e *Engine) stopStream(reason StopReason) {
	if k := e.State().Kind; k == StateIdle || k == StateStopping {
		logger.Debug("already idle or stopping, ignoring stop command")
		return
	}

	logger.Info("stopping stream", "reason", reason.String())

	e.mu.Lock()
	shouldStop, done := e.workerShouldStop, e.workerDone
	e.workerShouldStop, e.workerDone, e.workerResult = nil, nil, nil
	e.mu.Unlock()

	if shouldStop != nil {
		close(shouldStop)
		<-done
	}

	e.transitionTo(State{Kind: StateStopping, StopReason: reason})

	e.metricsSnapshot().Stop()
	e.resourceMgr.Shutdown()

	e.transitionTo(State{Kind: StateIdle})
	logger.Info("stream stopped")
}

func (e *Engine) setMicVolume(v float32) {
	if in := e.resourceMgr.Resources().MicInput; in != nil {
		in.SetGain(v)
	}
}

func (e *Engine) setSystemVolume(v float32) {
	if in := e.resourceMgr.Resources().SystemInput; in != nil {
		in.SetGain(v)
	}
}

func (e *Engine) setMicMuted(m bool) {
	if in := e.resourceMgr.Resources().MicInput; in != nil {
		in.SetMuted(m)
	}
}

func (e *Engine) setSystemMuted(m bool) {
	if in := e.resourceMgr.Resources().SystemInput; in != nil {
		in.SetMuted(m)
	}
}

// sendCaptureSources reports the video sources this build can open.
// Platform monitor/window enumeration is out of scope (spec §4.C7
// Non-goals); it reports the one synthetic pattern source at the engine's
// currently configured (or default) resolution.
func (e *Engine) sendCaptureSources() {
	e.mu.RLock()
	width, height := e.cfg.VideoWidth, e.cfg.VideoHeight
	e.mu.RUnlock()
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	e.sendEvent(Event{Kind: EvtCaptureSources, CaptureSources: capture.EnumerateCaptureSources(width, height)})
}

func (e *Engine) sendAudioDevices() {
	devices, err := capture.EnumerateAudioDevices()
	if err != nil {
		logger.Warn("failed to enumerate audio devices", "error", err)
		devices = nil
	}
	e.sendEvent(Event{Kind: EvtAudioDevices, AudioDevices: devices})
}

func (e *Engine) sendState() {
	s := e.State()
	e.sendEvent(Event{Kind: EvtStateChanged, PreviousState: s.Kind, CurrentState: s.Kind})
}

func (e *Engine) emitMetrics() {
	c := e.metricsSnapshot()
	snap := c.Snapshot()
	e.sendEvent(Event{Kind: EvtMetrics, Metrics: snap})

	for _, w := range c.CheckWarnings() {
		e.sendEvent(Event{Kind: EvtPerformanceWarning, Warning: w})
	}
	c.MarkReported()
}

// transitionTo swaps e.state and emits a paired StateChanged event,
// mirroring the Rust original's transition_to.
func (e *Engine) transitionTo(next State) {
	e.mu.Lock()
	prev := e.state
	e.state = next
	e.mu.Unlock()

	logger.Debug("state transition", "previous", prev.Kind.String(), "current", next.Kind.String(), "phase", next.StartPhase.String())
	e.sendEvent(Event{Kind: EvtStateChanged, PreviousState: prev.Kind, CurrentState: next.Kind, Phase: next.StartPhase})
}

// sendEvent enqueues an event, dropping it (with a log) if the bounded
// event channel is full rather than blocking the orchestrator.
func (e *Engine) sendEvent(evt Event) {
	select {
	case e.eventTx <- evt:
	default:
		logger.Warn("event channel full, dropping event", "kind", evt.Kind)
	}
}
