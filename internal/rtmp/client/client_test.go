package client

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alxayo/go-broadcaster/internal/media"
	"github.com/alxayo/go-broadcaster/internal/rtmp/amf"
	"github.com/alxayo/go-broadcaster/internal/rtmp/chunk"
	"github.com/alxayo/go-broadcaster/internal/rtmp/handshake"
)

// fakeServer plays the server side of the handshake and session bring-up
// (connect -> createStream -> publish) over a net.Pipe, then reads back one
// message the client sends on the data plane. It never imports a server
// package: the broadcaster only ever runs the client side of this exchange.
func fakeServer(conn net.Conn, publishAccepted bool) (*chunk.Message, error) {
	c0c1 := make([]byte, 1+handshake.PacketSize)
	if _, err := io.ReadFull(conn, c0c1); err != nil {
		return nil, err
	}
	s0s1s2 := make([]byte, 1+2*handshake.PacketSize)
	s0s1s2[0] = handshake.Version
	copy(s0s1s2[1+handshake.PacketSize:], c0c1[1:])
	if _, err := conn.Write(s0s1s2); err != nil {
		return nil, err
	}
	c2 := make([]byte, handshake.PacketSize)
	if _, err := io.ReadFull(conn, c2); err != nil {
		return nil, err
	}

	w := chunk.NewWriter(conn, 128)
	r := chunk.NewReader(conn, 128)

	if _, err := r.ReadMessage(); err != nil { // connect
		return nil, err
	}
	if err := w.WriteMessage(amfResult("_result", 1, map[string]interface{}{
		"code": "NetConnection.Connect.Success", "description": "ok",
	})); err != nil {
		return nil, err
	}

	if _, err := r.ReadMessage(); err != nil { // createStream
		return nil, err
	}
	if err := w.WriteMessage(amfResult("_result", 2, float64(1))); err != nil {
		return nil, err
	}

	if _, err := r.ReadMessage(); err != nil { // publish
		return nil, err
	}
	code := "NetStream.Publish.Start"
	if !publishAccepted {
		code = "NetStream.Publish.BadName"
	}
	if err := w.WriteMessage(amfResult("onStatus", 0, map[string]interface{}{
		"code": code, "level": "status", "description": "x",
	})); err != nil {
		return nil, err
	}
	if !publishAccepted {
		return nil, nil
	}

	return r.ReadMessage()
}

// amfResult encodes a 3-value AMF0 command reply ["name", trx, obj] as a
// type-20 command message, the shape every connect/createStream/publish
// response the client parses expects.
func amfResult(name string, trx float64, obj interface{}) *chunk.Message {
	payload, err := amf.EncodeAll(name, trx, obj)
	if err != nil {
		panic(err)
	}
	return &chunk.Message{
		CSID:            csidCommand,
		TypeID:          20,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}
}

func newTestClient(t *testing.T, clientConn net.Conn, cfg Config) *Client {
	t.Helper()
	cfg.dialFunc = func(network, address string, timeout time.Duration) (net.Conn, error) {
		return clientConn, nil
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClientConnectAndPublish(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	done := make(chan *chunk.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		msg, err := fakeServer(serverConn, true)
		if err != nil {
			errCh <- err
			return
		}
		done <- msg
	}()

	c := newTestClient(t, clientConn, Config{
		RTMPURL:   "rtmp://example.invalid/live",
		StreamKey: "stream1",
	})

	send, err := c.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, c, StateConnected, 2*time.Second)

	send <- &media.WirePacket{Payload: []byte{1, 2, 3}, Kind: media.WirePacketVideo, IsKeyframe: true}

	select {
	case msg := <-done:
		if msg == nil || len(msg.Payload) != 3 {
			t.Fatalf("expected 3-byte video payload, got %+v", msg)
		}
	case err := <-errCh:
		t.Fatalf("fake server error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data-plane message")
	}

	c.Close()
}

func TestClientPublishRejected(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	go fakeServer(serverConn, false)

	c := newTestClient(t, clientConn, Config{
		RTMPURL:              "rtmp://example.invalid/live",
		StreamKey:            "stream1",
		ReconnectMaxAttempts: 1,
	})
	if _, err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitForState(t, c, StateFailed, 2*time.Second)
}

func TestNewRejectsInvalidURL(t *testing.T) {
	if _, err := New(Config{RTMPURL: "rtmps://example.invalid/live", StreamKey: "k"}); err == nil {
		t.Fatal("expected error for rtmps:// scheme")
	}
}

func TestNewRejectsMissingStreamKey(t *testing.T) {
	if _, err := New(Config{RTMPURL: "rtmp://example.invalid/live"}); err == nil {
		t.Fatal("expected error for missing stream key")
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 10 * time.Second}, // capped at max
	}
	for _, tc := range cases {
		got := backoffDelay(tc.attempt, time.Second, 10*time.Second)
		if got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestWaitConnectedBlocksUntilConnected(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	go fakeServer(serverConn, true)

	c := newTestClient(t, clientConn, Config{
		RTMPURL:   "rtmp://example.invalid/live",
		StreamKey: "stream1",
	})
	if _, err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.WaitConnected(); err != nil {
		t.Fatalf("WaitConnected: %v", err)
	}
	if c.State().Kind != StateConnected {
		t.Fatalf("state after WaitConnected = %v, want Connected", c.State().Kind)
	}
	if gen := c.ConnectGeneration(); gen != 1 {
		t.Fatalf("ConnectGeneration = %d, want 1", gen)
	}
	c.Close()
}

// TestWaitConnectedReturnsErrorOnFailure grounds spec §8 scenario 2
// (rollback on RTMP failure): the resource manager's ConnectRtmp phase
// calls WaitConnected and must see an error once the client gives up.
func TestWaitConnectedReturnsErrorOnFailure(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	go fakeServer(serverConn, false)

	c := newTestClient(t, clientConn, Config{
		RTMPURL:              "rtmp://example.invalid/live",
		StreamKey:            "stream1",
		ReconnectMaxAttempts: 1,
		ReconnectBase:        5 * time.Millisecond,
		ReconnectMax:         10 * time.Millisecond,
	})
	if _, err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.WaitConnected(); err == nil {
		t.Fatal("expected WaitConnected to return an error")
	}
	if c.State().Kind != StateFailed {
		t.Fatalf("state after failed WaitConnected = %v, want Failed", c.State().Kind)
	}
}

// TestInitialConnectionFailureAppliesBackoff grounds spec §4.C2/§8 scenario
// 2: even the very first connect attempt must go through the same bounded
// reconnect/backoff policy as a later reconnect, not fail immediately.
func TestInitialConnectionFailureAppliesBackoff(t *testing.T) {
	var dialAttempts atomic.Int32
	cfg := Config{
		RTMPURL:              "rtmp://example.invalid/live",
		StreamKey:            "stream1",
		ReconnectMaxAttempts: 2,
		ReconnectBase:        5 * time.Millisecond,
		ReconnectMax:         20 * time.Millisecond,
	}
	cfg.dialFunc = func(network, address string, timeout time.Duration) (net.Conn, error) {
		dialAttempts.Add(1)
		return nil, fmt.Errorf("connection refused")
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitForState(t, c, StateFailed, time.Second)

	// one initial dial plus one dial per reconnect attempt.
	if got := dialAttempts.Load(); got != 3 {
		t.Fatalf("dial attempts = %d, want 3 (1 initial + %d retries)", got, cfg.ReconnectMaxAttempts)
	}
}

func waitForState(t *testing.T, c *Client, kind StateKind, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State().Kind == kind {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, last state %v", kind, c.State())
}
