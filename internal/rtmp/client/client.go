// Package client implements the broadcaster's outbound RTMP publish client
// (spec §4.C2): a single TCP connection that performs the simple handshake,
// brings up a publish session (connect/createStream/publish), then drains a
// bounded queue of WirePackets onto the wire until told to stop or until the
// connection is lost, at which point a bounded-attempt reconnect policy
// takes over. It is built on the same handshake/chunk/amf/control codecs the
// teacher's server used, run in the opposite direction.
package client

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/logger"
	"github.com/alxayo/go-broadcaster/internal/media"
	"github.com/alxayo/go-broadcaster/internal/rtmp/chunk"
	"github.com/alxayo/go-broadcaster/internal/rtmp/control"
	"github.com/alxayo/go-broadcaster/internal/rtmp/handshake"
	"github.com/alxayo/go-broadcaster/internal/rtmp/rpc"
	"github.com/alxayo/go-broadcaster/internal/rtmp/session"
)

// CSIDs used for the command stream and the two media streams. 2 is
// reserved for protocol control messages per the RTMP spec; 3 is the
// conventional command-message CSID; 4/6 follow the teacher's own
// audio/video CSID convention (see tests/integration/chunking_test.go).
const (
	csidControl = 2
	csidCommand = 3
	csidAudio   = 4
	csidVideo   = 6
)

// Config configures a Client's connection and reconnect behavior.
type Config struct {
	RTMPURL     string        // rtmp://host[:port]/app
	StreamKey   string        // publishingName handed to the publish command
	DialTimeout time.Duration // default 5s
	QueueDepth  int           // bounded WirePacket channel capacity, default 256

	ReconnectBase        time.Duration // default 1s
	ReconnectMax         time.Duration // default 10s
	ReconnectMaxAttempts int           // default 3

	// dialFunc is overridable for tests; left nil it defaults to
	// net.DialTimeout.
	dialFunc func(network, address string, timeout time.Duration) (net.Conn, error)
}

func (c *Config) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 10 * time.Second
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = 3
	}
	if c.dialFunc == nil {
		c.dialFunc = func(network, address string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout(network, address, timeout)
		}
	}
}

// Stats are the client's cumulative counters (spec §4.C10 "network" side).
type Stats struct {
	BytesSent      uint64
	PacketsSent    uint64
	PacketsDropped uint64
	ReconnectCount uint64
}

// Client is a single-destination RTMP publish client.
type Client struct {
	cfg  Config
	dest *destination

	mu    sync.Mutex
	state ConnectionState

	sendCh chan *media.WirePacket
	stopCh chan struct{}
	doneCh chan struct{}

	// connectResult carries the outcome of the very first connect attempt
	// exactly once, so a caller that needs connect() to behave as the
	// blocking handshake+publish spec §4.C8's ConnectRtmp phase describes
	// can wait on it without Connect itself becoming blocking.
	connectResult     chan ConnectionState
	connectResultOnce sync.Once

	// connectGeneration counts successful (re)connects, starting at 1 for
	// the first one. Consumers use it to detect a reconnect happened since
	// they last looked, without the client pushing state transitions at them.
	connectGeneration atomic.Uint64

	bytesSent      atomic.Uint64
	packetsSent    atomic.Uint64
	packetsDropped atomic.Uint64
	reconnectCount atomic.Uint64

	stopOnce sync.Once
}

// New validates cfg and parses the RTMP URL. The returned Client is
// Disconnected until Connect is called.
func New(cfg Config) (*Client, error) {
	cfg.setDefaults()
	if cfg.StreamKey == "" {
		return nil, rerrors.NewStartupError(rerrors.InvalidUrl, "client.new", fmt.Errorf("stream key required"))
	}
	dest, err := parseURL(cfg.RTMPURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:           cfg,
		dest:          dest,
		state:         ConnectionState{Kind: StateDisconnected},
		sendCh:        make(chan *media.WirePacket, cfg.QueueDepth),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		connectResult: make(chan ConnectionState, 1),
	}, nil
}

// State returns the client's current observable connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	logger.Info("rtmp client state", "state", s.String())
}

// Stats returns a snapshot of the client's cumulative counters.
func (c *Client) Stats() Stats {
	return Stats{
		BytesSent:      c.bytesSent.Load(),
		PacketsSent:    c.packetsSent.Load(),
		PacketsDropped: c.packetsDropped.Load(),
		ReconnectCount: c.reconnectCount.Load(),
	}
}

// Connect starts the client's connect/publish/reconnect loop in the
// background and immediately returns a bounded sender for WirePackets.
// Connect itself is nonblocking: callers observe progress via State(), or
// block on the first outcome with WaitConnected.
func (c *Client) Connect() (chan<- *media.WirePacket, error) {
	go c.run()
	return c.sendCh, nil
}

// WaitConnected blocks until the client's first connect/publish attempt
// resolves, applying the full reconnect/backoff policy to that first
// attempt exactly as it would to any later one (spec §4.C2). This is what
// makes the resource manager's ConnectRtmp phase (spec §4.C8: "connect()
// blocking handshake + publish; on success, keep the client") block on a
// Client whose own Connect is nonblocking.
func (c *Client) WaitConnected() error {
	select {
	case s := <-c.connectResult:
		if s.Kind == StateFailed {
			return rerrors.NewStartupError(rerrors.ConnectFailed, "client.wait_connected", fmt.Errorf("%s", s.Reason))
		}
		return nil
	case <-c.doneCh:
		return rerrors.NewStartupError(rerrors.ConnectFailed, "client.wait_connected", fmt.Errorf("client closed before connecting"))
	}
}

// ConnectGeneration returns how many times the client has reached
// StateConnected since it was created. Callers that need to notice a
// reconnect (e.g. the stream worker re-sending sequence headers per spec
// §4.C2) compare this against the value they last observed.
func (c *Client) ConnectGeneration() uint64 {
	return c.connectGeneration.Load()
}

func (c *Client) signalConnectResult(s ConnectionState) {
	c.connectResultOnce.Do(func() {
		c.connectResult <- s
	})
}

// Send enqueues a WirePacket, dropping it if the queue is full (per spec
// §5 backpressure policy: drop-newest-on-full). Returns true if enqueued.
func (c *Client) Send(pkt *media.WirePacket) bool {
	select {
	case c.sendCh <- pkt:
		return true
	default:
		c.packetsDropped.Add(1)
		return false
	}
}

// Close signals shutdown: the send/receive loop terminates, queued packets
// are discarded, and the socket is closed best-effort within a 5s grace
// period.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	select {
	case <-c.doneCh:
	case <-time.After(5 * time.Second):
	}
	return nil
}

// run drives the top-level state machine: connect, stream, and on failure,
// apply the bounded reconnect policy, until Close is called or reconnect
// attempts are exhausted.
func (c *Client) run() {
	defer close(c.doneCh)

	attempt := 0
	for {
		select {
		case <-c.stopCh:
			c.setState(ConnectionState{Kind: StateDisconnected})
			return
		default:
		}

		c.setState(ConnectionState{Kind: StateConnecting})
		conn, sess, err := c.connectOnce()
		if err == nil {
			attempt = 0
			c.connectGeneration.Add(1)
			connected := ConnectionState{Kind: StateConnected}
			c.setState(connected)
			c.signalConnectResult(connected)
			err = c.drainDataPlane(conn, sess)
			_ = conn.Close()
		}

		select {
		case <-c.stopCh:
			c.setState(ConnectionState{Kind: StateDisconnected})
			return
		default:
		}

		// The initial connection attempt applies the same bounded
		// reconnect/backoff policy as any later one (spec §4.C2, §8
		// scenario 2): only once attempts are exhausted does the client
		// give up and report Failed.
		attempt++
		if attempt > c.cfg.ReconnectMaxAttempts {
			reason := "reconnect attempts exhausted"
			if err != nil {
				reason = err.Error()
			}
			failed := ConnectionState{Kind: StateFailed, Reason: reason}
			c.setState(failed)
			c.signalConnectResult(failed)
			return
		}
		c.reconnectCount.Add(1)
		c.setState(ConnectionState{Kind: StateReconnecting, Attempt: attempt})
		delay := backoffDelay(attempt, c.cfg.ReconnectBase, c.cfg.ReconnectMax)
		select {
		case <-time.After(delay):
		case <-c.stopCh:
			c.setState(ConnectionState{Kind: StateDisconnected})
			return
		}
	}
}

// backoffDelay implements spec §4.C2: min(base * 2^(attempt-1), max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt-1)
	if d <= 0 || d > max { // overflow guard and cap
		return max
	}
	return d
}

// connectOnce performs the handshake and session bring-up (connect ->
// createStream -> publish) over a fresh TCP connection.
func (c *Client) connectOnce() (net.Conn, *session.Session, error) {
	conn, err := c.cfg.dialFunc("tcp", c.dest.host, c.cfg.DialTimeout)
	if err != nil {
		return nil, nil, rerrors.NewStartupError(rerrors.ConnectFailed, "client.dial", err)
	}

	if err := handshake.ClientHandshake(conn); err != nil {
		conn.Close()
		return nil, nil, rerrors.NewStartupError(rerrors.ConnectFailed, "client.handshake", err)
	}

	w := chunk.NewWriter(conn, 128)
	r := chunk.NewReader(conn, 128)
	sess := session.New(c.dest.app, c.dest.tcURL)

	if err := c.requestConnection(w, r, sess); err != nil {
		conn.Close()
		return nil, nil, err
	}
	streamID, err := c.requestCreateStream(w, r, sess)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	sess.MarkStreamCreated(streamID)

	if err := c.requestPublishing(w, r, sess, streamID); err != nil {
		conn.Close()
		return nil, nil, err
	}

	return conn, sess, nil
}

// requestConnection issues RequestConnection(appName) and waits (~5s cap)
// for ConnectionRequestAccepted, decoding any control bursts along the way.
func (c *Client) requestConnection(w *chunk.Writer, r *chunk.Reader, sess *session.Session) error {
	trx := sess.NextTransactionID()
	msg, err := rpc.BuildConnectRequest(float64(trx), rpc.ConnectRequest{App: sess.App(), TcURL: sess.TcURL()})
	if err != nil {
		return rerrors.NewStartupError(rerrors.ConnectFailed, "client.connect.build", err)
	}
	msg.CSID = csidCommand
	if err := w.WriteMessage(msg); err != nil {
		return rerrors.NewStartupError(rerrors.ConnectFailed, "client.connect.write", err)
	}

	res, err := awaitCommandResponse(r, 5*time.Second, func(m *chunk.Message) (any, error) {
		return rpc.ParseConnectResult(m)
	})
	if err != nil {
		return rerrors.NewStartupError(rerrors.ConnectFailed, "client.connect.await", err)
	}
	cr := res.(*rpc.ConnectResult)
	if !cr.Accepted {
		return rerrors.NewStartupError(rerrors.AuthRejected, "client.connect.rejected", fmt.Errorf("%s: %s", cr.Code, cr.Description))
	}
	sess.MarkConnected("FMLE/3.0 (compatible; go-broadcaster)")
	return nil
}

// requestCreateStream issues createStream and waits for its _result,
// returning the allocated message stream ID.
func (c *Client) requestCreateStream(w *chunk.Writer, r *chunk.Reader, sess *session.Session) (uint32, error) {
	trx := sess.NextTransactionID()
	msg, err := rpc.BuildCreateStreamRequest(float64(trx))
	if err != nil {
		return 0, rerrors.NewStartupError(rerrors.ConnectFailed, "client.createstream.build", err)
	}
	msg.CSID = csidCommand
	if err := w.WriteMessage(msg); err != nil {
		return 0, rerrors.NewStartupError(rerrors.ConnectFailed, "client.createstream.write", err)
	}

	res, err := awaitCommandResponse(r, 5*time.Second, func(m *chunk.Message) (any, error) {
		return rpc.ParseCreateStreamResult(m)
	})
	if err != nil {
		return 0, rerrors.NewStartupError(rerrors.ConnectFailed, "client.createstream.await", err)
	}
	csr := res.(*rpc.CreateStreamResult)
	if !csr.Accepted {
		return 0, rerrors.NewStartupError(rerrors.ConnectFailed, "client.createstream.rejected", fmt.Errorf("createStream rejected"))
	}
	return csr.StreamID, nil
}

// requestPublishing issues publish(streamKey, "live") and waits (~3s cap)
// for the onStatus NetStream.Publish.Start event.
func (c *Client) requestPublishing(w *chunk.Writer, r *chunk.Reader, sess *session.Session, streamID uint32) error {
	msg, err := rpc.BuildPublishRequest(c.cfg.StreamKey, "live", streamID)
	if err != nil {
		return rerrors.NewStartupError(rerrors.ConnectFailed, "client.publish.build", err)
	}
	msg.CSID = csidCommand
	if err := w.WriteMessage(msg); err != nil {
		return rerrors.NewStartupError(rerrors.ConnectFailed, "client.publish.write", err)
	}
	sess.MarkPublishing(c.cfg.StreamKey)

	res, err := awaitCommandResponse(r, 3*time.Second, func(m *chunk.Message) (any, error) {
		return rpc.ParsePublishStatus(m)
	})
	if err != nil {
		return rerrors.NewStartupError(rerrors.ConnectFailed, "client.publish.await", err)
	}
	status := res.(*rpc.PublishStatus)
	if !status.IsPublishStarted() {
		return rerrors.NewStartupError(rerrors.ConnectFailed, "client.publish.rejected", fmt.Errorf("%s: %s", status.Code, status.Description))
	}
	return nil
}

// awaitCommandResponse reads messages until parse succeeds, a deadline
// elapses, or an unrelated fatal read error occurs. Control messages (types
// 1-6) encountered while waiting are decoded and logged, not treated as
// errors, mirroring the teacher's control decoder's read-side contract.
func awaitCommandResponse(r *chunk.Reader, timeout time.Duration, parse func(*chunk.Message) (any, error)) (any, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg, err := r.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msg.TypeID >= control.TypeSetChunkSize && msg.TypeID <= control.TypeSetPeerBandwidth {
			if v, err := control.Decode(msg.TypeID, msg.Payload); err == nil {
				logger.Debug("rtmp client control message", "value", fmt.Sprintf("%+v", v))
			}
			continue
		}
		v, err := parse(msg)
		if err != nil {
			// Not the response we're waiting for (e.g. a stray command); keep reading.
			continue
		}
		return v, nil
	}
	return nil, rerrors.NewTimeoutError("client.await_response", timeout, fmt.Errorf("no response within deadline"))
}

// drainDataPlane writes queued WirePackets to the wire until Close is
// called or a write/read failure indicates the connection was lost.
func (c *Client) drainDataPlane(conn net.Conn, sess *session.Session) error {
	w := chunk.NewWriter(conn, 4096)
	readErrCh := make(chan error, 1)
	go func() {
		r := chunk.NewReader(conn, 128)
		for {
			msg, err := r.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			if msg.TypeID >= control.TypeSetChunkSize && msg.TypeID <= control.TypeSetPeerBandwidth {
				if v, err := control.Decode(msg.TypeID, msg.Payload); err == nil {
					logger.Debug("rtmp client control message", "value", fmt.Sprintf("%+v", v))
				}
			}
		}
	}()

	for {
		select {
		case <-c.stopCh:
			return nil
		case err := <-readErrCh:
			if err == io.EOF {
				return rerrors.NewRuntimeError(rerrors.ConnectionLost, "client.read", err)
			}
			return rerrors.NewRuntimeError(rerrors.ConnectionLost, "client.read", err)
		case pkt, ok := <-c.sendCh:
			if !ok {
				return nil
			}
			msg := wirePacketToMessage(pkt, sess.StreamID())
			if err := w.WriteMessage(msg); err != nil {
				return rerrors.NewRuntimeError(rerrors.SendFailed, "client.write", err)
			}
			c.bytesSent.Add(uint64(len(pkt.Payload)))
			c.packetsSent.Add(1)
		}
	}
}

func wirePacketToMessage(pkt *media.WirePacket, streamID uint32) *chunk.Message {
	typeID := uint8(8)
	csid := uint32(csidAudio)
	if pkt.Kind == media.WirePacketVideo {
		typeID = 9
		csid = csidVideo
	}
	return &chunk.Message{
		CSID:            csid,
		Timestamp:       pkt.TimestampMs,
		MessageLength:   uint32(len(pkt.Payload)),
		TypeID:          typeID,
		MessageStreamID: streamID,
		Payload:         pkt.Payload,
	}
}
