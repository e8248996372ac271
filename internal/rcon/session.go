package rcon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// connectionIDs hands out process-wide unique session ids.
var connectionIDs atomic.Uint64

// Credentials locate and unlock the remote admin interface. They are
// consumed during the handshake and not retained afterwards.
type Credentials struct {
	// Address is the host:port of the server.
	Address string `yaml:"address"`

	// Password authenticates the Login command.
	Password string `yaml:"password"`
}

// Session exclusively owns one authenticated TCP connection. Calls must be
// serialized by the owner; the underlying stream does not multiplex.
type Session struct {
	id        uint64
	conn      net.Conn
	xorKey    []byte
	authToken string
	nextReqID uint32
}

// Connect dials the server and runs the full handshake: discard the v1
// legacy prefix, obtain the XOR key via ServerConnect, then authenticate
// with Login. A rejected password returns ErrInvalidPassword.
func Connect(ctx context.Context, creds Credentials) (*Session, error) {
	slog.Debug("connecting to rcon server", "address", creds.Address)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", creds.Address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", creds.Address, err)
	}

	s := &Session{
		id:   connectionIDs.Add(1),
		conn: conn,
	}

	if err := s.discardLegacyPrefix(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	connectResp, err := s.Execute(ctx, NewRequest("ServerConnect", ""))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := connectResp.ok(invalidData("failure status on ServerConnect")); err != nil {
		_ = conn.Close()
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(connectResp.ContentBody)
	if err != nil {
		_ = conn.Close()
		return nil, invalidData("xor key is not valid base64")
	}
	s.xorKey = key

	loginResp, err := s.Execute(ctx, NewRequest("Login", creds.Password))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := loginResp.ok(ErrInvalidPassword); err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.authToken = loginResp.ContentBody

	slog.Debug("rcon session established", "conn", s.id)
	return s, nil
}

// discardLegacyPrefix reads and drops the up-to-4 bytes a v1 server sends
// on accept.
func (s *Session) discardLegacyPrefix() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	var prefix [4]byte
	_, err := s.conn.Read(prefix[:])
	_ = s.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return fmt.Errorf("reading legacy prefix: %w", err)
	}
	return nil
}

// Execute sends one request and reads exactly one response. The stored
// auth token is attached automatically once login has succeeded.
func (s *Session) Execute(ctx context.Context, req Request) (Response, error) {
	// The Login body is the password; keep it out of any trace output.
	if req.Name != "Login" {
		slog.Debug("executing rcon command", "name", req.Name, "conn", s.id)
	}

	if s.authToken != "" {
		req.AuthToken = s.authToken
	}

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encoding request: %w", err)
	}

	s.nextReqID++
	if err := writeFrame(s.conn, s.nextReqID, payload, s.xorKey); err != nil {
		return Response{}, err
	}

	body, err := readFrame(s.conn, s.xorKey)
	if err != nil {
		return Response{}, err
	}
	return decodeResponse(body)
}

// ID returns the process-wide unique id of this session.
func (s *Session) ID() uint64 {
	return s.id
}

// Close tears down the TCP connection. The session must not be used
// afterwards.
func (s *Session) Close() error {
	return s.conn.Close()
}
