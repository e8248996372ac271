package testutil

import (
	"net"
	"testing"
	"time"
)

// PipeConn creates a pair of net.Conn ends over net.Pipe for tests.
// Both ends are closed automatically when the test finishes.
func PipeConn(t testing.TB) (client, server net.Conn) {
	t.Helper()

	server, client = net.Pipe()

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	return client, server
}

// DialTCP connects to addr and closes the connection automatically when
// the test finishes.
func DialTCP(t testing.TB, addr string) (net.Conn, error) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn, nil
}

// ListenTCP creates a TCP listener on a random localhost port.
// The listener is closed automatically when the test finishes.
func ListenTCP(t testing.TB) (net.Listener, string) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create TCP listener: %v", err)
	}

	t.Cleanup(func() {
		_ = listener.Close()
	})

	return listener, listener.Addr().String()
}
