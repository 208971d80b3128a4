// Package engine implements the broadcaster's orchestrator (spec §4.C9): a
// command/event loop driving a small state machine, and a dedicated
// stream-worker goroutine that encodes and frames video/audio into
// WirePackets at the configured cadence. Grounded on the Rust original's
// Engine (orchestrator.rs): Engine::new, run's recv_timeout-driven main
// loop, handle_command's dispatch table, start_stream/stop_stream's
// idempotent transitions, and transition_to/send_event's paired
// StateChanged emission, translated from crossbeam_channel to buffered Go
// channels and from parking_lot::RwLock to sync.RWMutex.
package engine

import (
	"github.com/alxayo/go-broadcaster/internal/media"
	"github.com/alxayo/go-broadcaster/internal/metrics"
	"github.com/alxayo/go-broadcaster/internal/resources"
)

// CommandKind tags the variant a Command carries, mirroring the Rust
// original's EngineCommand enum.
type CommandKind uint8

const (
	CmdStart CommandKind = iota
	CmdStop
	CmdSetMicVolume
	CmdSetSystemVolume
	CmdSetMicMuted
	CmdSetSystemMuted
	CmdGetCaptureSources
	CmdGetAudioDevices
	CmdGetState
	CmdShutdown
)

// Command is one entry on the bounded command channel (capacity 64 per
// spec §5). Only the fields relevant to Kind are meaningful.
type Command struct {
	Kind   CommandKind
	Config resources.Config // CmdStart
	Volume float32          // CmdSetMicVolume, CmdSetSystemVolume
	Muted  bool             // CmdSetMicMuted, CmdSetSystemMuted
}

// EventKind tags the variant an Event carries, mirroring the Rust
// original's EngineEvent enum.
type EventKind uint8

const (
	EvtStateChanged EventKind = iota
	EvtMetrics
	EvtPerformanceWarning
	EvtError
	EvtCaptureSources
	EvtAudioDevices
	EvtReady
	EvtShutdown
)

// Event is one entry on the bounded event channel (capacity 256 per
// spec §5). Only the fields relevant to Kind are meaningful.
type Event struct {
	Kind EventKind

	PreviousState StateKind      // EvtStateChanged
	CurrentState  StateKind      // EvtStateChanged
	Phase         resources.Phase // EvtStateChanged, meaningful iff CurrentState == StateStarting

	Metrics metrics.Snapshot // EvtMetrics
	Warning metrics.Warning  // EvtPerformanceWarning

	Recoverable bool   // EvtError
	Message     string // EvtError

	CaptureSources []media.CaptureSource // EvtCaptureSources
	AudioDevices   []media.AudioDevice   // EvtAudioDevices
}

// StateKind is the engine's top-level state, mirroring the Rust original's
// EngineState discriminant (StateStarting/Stopping additionally carry a
// phase, tracked alongside in State).
type StateKind uint8

const (
	StateIdle StateKind = iota
	StateStarting
	StateLive
	StateStopping
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateLive:
		return "Live"
	case StateStopping:
		return "Stopping"
	case StateError:
		return "Error"
	default:
		return "UnknownState"
	}
}

// StopReason classifies why the engine transitioned out of Live, mirroring
// the Rust original's StopReason enum.
type StopReason uint8

const (
	StopUserRequested StopReason = iota
	StopCaptureError
	StopEncoderError
	StopNetworkLost
)

func (r StopReason) String() string {
	switch r {
	case StopUserRequested:
		return "UserRequested"
	case StopCaptureError:
		return "CaptureError"
	case StopEncoderError:
		return "EncoderError"
	case StopNetworkLost:
		return "NetworkLost"
	default:
		return "UnknownStopReason"
	}
}

// State is the engine's full current state: the discriminant plus whatever
// phase/reason/message accompanies it.
type State struct {
	Kind        StateKind
	StartPhase  resources.Phase // meaningful iff Kind == StateStarting
	StopReason  StopReason      // meaningful iff Kind == StateStopping
	Message     string          // meaningful iff Kind == StateError
	Recoverable bool            // meaningful iff Kind == StateError
}
