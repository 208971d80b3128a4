package session

import "testing"

func TestSessionLifecycle(t *testing.T) {
	s := New("live", "rtmp://localhost:1935/live")
	if s.State() != StateUninitialized {
		t.Fatalf("expected Uninitialized, got %s", s.State())
	}

	first := s.NextTransactionID()
	if first != 1 {
		t.Fatalf("expected first transaction id 1, got %d", first)
	}
	second := s.NextTransactionID()
	if second != 2 {
		t.Fatalf("expected second transaction id 2, got %d", second)
	}

	s.MarkConnected("FMLE/3.0")
	if s.State() != StateConnected || s.FlashVer() != "FMLE/3.0" {
		t.Fatalf("unexpected state after connect: %s / %q", s.State(), s.FlashVer())
	}

	s.MarkStreamCreated(1)
	if s.State() != StateStreamCreated || s.StreamID() != 1 {
		t.Fatalf("unexpected state after createStream: %s / %d", s.State(), s.StreamID())
	}

	key := s.MarkPublishing("stream1")
	if key != "live/stream1" || s.State() != StatePublishing || s.StreamKey() != "live/stream1" {
		t.Fatalf("unexpected state after publish: %s / %q", s.State(), s.StreamKey())
	}
}

func TestSessionStateString(t *testing.T) {
	cases := map[State]string{
		StateUninitialized: "Uninitialized",
		StateConnected:      "Connected",
		StateStreamCreated:  "StreamCreated",
		StatePublishing:     "Publishing",
		State(99):           "Unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
