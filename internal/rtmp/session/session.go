// Package session tracks the client-side lifecycle of one RTMP publish
// session: connect negotiation, stream creation, and publish bring-up.
package session

// State represents the lifecycle state of an outbound RTMP session.
// The progression follows spec §4.C2 "Session bring-up":
//
//	Uninitialized -> Connected -> StreamCreated -> Publishing
//
// The client records each step it drives (MarkConnected,
// MarkStreamCreated, MarkPublishing) rather than reacting to received
// commands as a server-side session would.
type State uint8

const (
	StateUninitialized State = iota
	StateConnected
	StateStreamCreated
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateConnected:
		return "Connected"
	case StateStreamCreated:
		return "StreamCreated"
	case StatePublishing:
		return "Publishing"
	default:
		return "Unknown"
	}
}

// Session holds per-connection RTMP session metadata the client
// negotiates during connect/createStream/publish. Concurrency: mutated
// only by the client's single connect goroutine; no locks required.
type Session struct {
	app      string
	tcURL    string
	flashVer string

	transactionID uint32 // next transaction id to use; starts at 1
	streamID      uint32 // allocated by createStream, 0 until set
	streamKey     string // app/publishingName once publish is sent

	state State
}

// New creates a new Session in Uninitialized state for the given
// application name and tcUrl (both required by the connect command).
func New(app, tcURL string) *Session {
	return &Session{app: app, tcURL: tcURL, transactionID: 1, state: StateUninitialized}
}

// NextTransactionID returns the transaction id to use for the next
// outbound command and advances the counter.
func (s *Session) NextTransactionID() uint32 {
	id := s.transactionID
	s.transactionID++
	return id
}

// MarkConnected transitions the session to Connected after a successful
// connect "_result" response.
func (s *Session) MarkConnected(flashVer string) {
	s.flashVer = flashVer
	if s.state == StateUninitialized {
		s.state = StateConnected
	}
}

// MarkStreamCreated records the stream ID allocated by the server's
// createStream "_result" response and transitions to StreamCreated.
func (s *Session) MarkStreamCreated(streamID uint32) {
	s.streamID = streamID
	if s.state == StateConnected {
		s.state = StateStreamCreated
	}
}

// MarkPublishing composes the fully-qualified stream key from the
// session's app and the publishingName just sent, and transitions to
// Publishing. Called once the publish request has been written (the
// RTMP spec does not gate sending on receiving onStatus first).
func (s *Session) MarkPublishing(publishingName string) string {
	s.streamKey = s.app + "/" + publishingName
	if s.state == StateStreamCreated {
		s.state = StatePublishing
	}
	return s.streamKey
}

// Accessor methods (read-only) ------------------------------------------------

func (s *Session) App() string       { return s.app }
func (s *Session) TcURL() string     { return s.tcURL }
func (s *Session) FlashVer() string  { return s.flashVer }
func (s *Session) StreamID() uint32  { return s.streamID }
func (s *Session) StreamKey() string { return s.streamKey }
func (s *Session) State() State      { return s.state }
