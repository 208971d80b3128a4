package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, chan Command, chan Event) {
	t.Helper()
	cmds := make(chan Command, 4)
	events := make(chan Event, 4)
	return New(cmds, events), cmds, events
}

func TestNewStartsIdle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.Equal(t, StateIdle, e.State().Kind)
}

func TestStopStreamNoopWhenIdle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.stopStream(StopUserRequested) // must not block or panic without a worker
	require.Equal(t, StateIdle, e.State().Kind)
}

func TestSendStateEmitsCurrentState(t *testing.T) {
	e, _, events := newTestEngine(t)
	e.sendState()

	select {
	case evt := <-events:
		require.Equal(t, EvtStateChanged, evt.Kind)
		require.Equal(t, StateIdle, evt.CurrentState)
		require.Equal(t, StateIdle, evt.PreviousState)
	default:
		t.Fatal("expected an event to be enqueued")
	}
}

func TestSendEventDropsWhenChannelFull(t *testing.T) {
	cmds := make(chan Command, 1)
	events := make(chan Event, 1)
	e := New(cmds, events)

	e.sendEvent(Event{Kind: EvtReady})
	e.sendEvent(Event{Kind: EvtReady}) // channel already full, must not block

	require.Len(t, events, 1)
}

func TestHandleCommandShutdownStopsLoop(t *testing.T) {
	e, _, events := newTestEngine(t)
	cont := e.handleCommand(Command{Kind: CmdShutdown})
	require.False(t, cont, "handleCommand(CmdShutdown) should return false")

	var sawShutdown bool
	for len(events) > 0 {
		if (<-events).Kind == EvtShutdown {
			sawShutdown = true
		}
	}
	require.True(t, sawShutdown, "expected an EvtShutdown event")
}

func TestStateKindString(t *testing.T) {
	cases := map[StateKind]string{
		StateIdle:     "Idle",
		StateStarting: "Starting",
		StateLive:     "Live",
		StateStopping: "Stopping",
		StateError:    "Error",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("StateKind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestStopReasonString(t *testing.T) {
	cases := map[StopReason]string{
		StopUserRequested: "UserRequested",
		StopCaptureError:  "CaptureError",
		StopEncoderError:  "EncoderError",
		StopNetworkLost:   "NetworkLost",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Fatalf("StopReason(%d).String() = %q, want %q", r, got, want)
		}
	}
}

func TestSetMicVolumeNoopWithoutResources(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.setMicVolume(0.5) // no mixer input present yet; must not panic
	e.setMicMuted(true)
	e.setSystemVolume(0.5)
	e.setSystemMuted(true)
}
