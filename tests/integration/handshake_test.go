package integration

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/alxayo/go-broadcaster/internal/rtmp/handshake"
)

// fakeServerHandshake plays the server side of the RTMP simple handshake
// against a net.Pipe peer, without depending on any server package (the
// broadcaster only ever runs the client side of this exchange).
func fakeServerHandshake(conn net.Conn) error {
	c0c1 := make([]byte, 1+handshake.PacketSize)
	if _, err := io.ReadFull(conn, c0c1); err != nil {
		return err
	}
	if c0c1[0] != handshake.Version {
		return errVersion
	}
	s0s1s2 := make([]byte, 1+handshake.PacketSize+handshake.PacketSize)
	s0s1s2[0] = handshake.Version
	// S2 echoes C1.
	copy(s0s1s2[1+handshake.PacketSize:], c0c1[1:])
	if _, err := conn.Write(s0s1s2); err != nil {
		return err
	}
	c2 := make([]byte, handshake.PacketSize)
	_, err := io.ReadFull(conn, c2)
	return err
}

var errVersion = &versionError{}

type versionError struct{}

func (*versionError) Error() string { return "unsupported handshake version" }

func TestHandshakeIntegration(t *testing.T) {
	t.Run("valid handshake", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer serverConn.Close()
		defer clientConn.Close()

		serverErrCh := make(chan error, 1)
		go func() { serverErrCh <- fakeServerHandshake(serverConn) }()

		clientErr := handshake.ClientHandshake(clientConn)
		srvErr := <-serverErrCh

		if clientErr != nil || srvErr != nil {
			t.Fatalf("expected successful handshake, got clientErr=%v serverErr=%v", clientErr, srvErr)
		}
	})

	t.Run("bad S0 version rejected", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer serverConn.Close()
		defer clientConn.Close()

		go func() {
			var c0c1 [1 + 1536]byte
			_, _ = io.ReadFull(serverConn, c0c1[:])
			bad := make([]byte, 1+1536)
			bad[0] = 0x06 // unsupported version
			_, _ = serverConn.Write(bad)
		}()

		err := handshake.ClientHandshake(clientConn)
		if err == nil {
			t.Fatalf("expected error for invalid S0 version")
		}
	})

	t.Run("truncated S0+S1 times out", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer serverConn.Close()
		defer clientConn.Close()

		go func() {
			var c0c1 [1 + 1536]byte
			_, _ = io.ReadFull(serverConn, c0c1[:])
			// Only send a partial S0+S1 then go silent.
			_, _ = serverConn.Write(bytes.Repeat([]byte{0x03}, 10))
		}()

		done := make(chan error, 1)
		go func() { done <- handshake.ClientHandshake(clientConn) }()

		select {
		case err := <-done:
			if err == nil {
				t.Fatalf("expected timeout/protocol error for truncated S0+S1")
			}
		case <-time.After(7 * time.Second):
			t.Fatalf("client handshake did not return within expected window")
		}
	})
}
