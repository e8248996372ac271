package testutil

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
)

// FakeResponse is what a FakeRcon handler answers with.
type FakeResponse struct {
	StatusCode    int
	StatusMessage string
	ContentBody   string
}

// FakeHandler produces the response for one non-handshake command.
type FakeHandler func(name, contentBody string) FakeResponse

// FakeRcon is a scriptable stand-in for the game server. It speaks the
// real wire protocol (legacy prefix, framing, XOR masking, handshake) but
// answers commands from a user-supplied handler. The framing and masking
// are implemented independently from the production codec on purpose.
type FakeRcon struct {
	t        testing.TB
	listener net.Listener

	// XorKey is delivered base64-encoded on ServerConnect.
	XorKey []byte

	// Password is the only accepted Login body.
	Password string

	// AuthToken is handed out on successful login.
	AuthToken string

	// Handle answers all commands after the handshake. Nil means every
	// command succeeds with an empty body.
	Handle FakeHandler

	mu       sync.Mutex
	accepted int
}

// NewFakeRcon starts a fake server on a random port and returns it with
// its address. It serves until the test finishes.
func NewFakeRcon(t testing.TB) (*FakeRcon, string) {
	t.Helper()

	listener, addr := ListenTCP(t)
	f := &FakeRcon{
		t:         t,
		listener:  listener,
		XorKey:    []byte("abcd"),
		Password:  "pw",
		AuthToken: "tok",
	}
	go f.serve()
	return f, addr
}

// Accepted returns how many connections the server has accepted so far.
func (f *FakeRcon) Accepted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

func (f *FakeRcon) serve() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.accepted++
		f.mu.Unlock()
		go f.serveConn(conn)
	}
}

func (f *FakeRcon) serveConn(conn net.Conn) {
	defer conn.Close()

	// v1 legacy prefix.
	if _, err := conn.Write([]byte{0xde, 0xad, 0xbe, 0xef}); err != nil {
		return
	}

	var key []byte
	authenticated := false
	for {
		id, req, err := f.readRequest(conn, key)
		if err != nil {
			return
		}

		var resp FakeResponse
		switch req["name"] {
		case "ServerConnect":
			resp = FakeResponse{
				StatusCode:  200,
				ContentBody: base64.StdEncoding.EncodeToString(f.XorKey),
			}
		case "Login":
			if req["contentBody"] == f.Password {
				authenticated = true
				resp = FakeResponse{StatusCode: 200, ContentBody: f.AuthToken}
			} else {
				resp = FakeResponse{StatusCode: 401, StatusMessage: "invalid password"}
			}
		default:
			if !authenticated {
				resp = FakeResponse{StatusCode: 401, StatusMessage: "not authenticated"}
			} else if f.Handle != nil {
				resp = f.Handle(req["name"], req["contentBody"])
			} else {
				resp = FakeResponse{StatusCode: 200}
			}
		}

		if err := f.writeResponse(conn, id, req["name"], resp, key); err != nil {
			return
		}

		// The key becomes active only after the ServerConnect response has
		// been sent in the clear.
		if req["name"] == "ServerConnect" {
			key = f.XorKey
		}
	}
}

func (f *FakeRcon) readRequest(conn net.Conn, key []byte) (uint32, map[string]string, error) {
	var header [8]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return 0, nil, err
	}
	id := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > 1<<20 {
		return 0, nil, fmt.Errorf("fake rcon: oversize request %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return 0, nil, err
	}
	mask(payload, key)

	var req map[string]string
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, fmt.Errorf("fake rcon: bad request json: %w", err)
	}
	return id, req, nil
}

func (f *FakeRcon) writeResponse(conn net.Conn, id uint32, name string, resp FakeResponse, key []byte) error {
	statusMessage := resp.StatusMessage
	if statusMessage == "" && resp.StatusCode == 200 {
		statusMessage = "OK"
	}
	payload, err := json.Marshal(map[string]any{
		"statusCode":    resp.StatusCode,
		"statusMessage": statusMessage,
		"version":       2,
		"name":          name,
		"contentBody":   resp.ContentBody,
	})
	if err != nil {
		return err
	}

	mask(payload, key)
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	_, err = conn.Write(buf)
	return err
}

func mask(buf, key []byte) {
	if len(key) == 0 {
		return
	}
	for i := range buf {
		buf[i] ^= key[i%len(key)]
	}
}
