package rcon

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

const (
	// frameHeaderSize covers the little-endian request id and payload length.
	frameHeaderSize = 8

	// maxFrameSize caps the advertised payload length. Anything larger is
	// treated as a desynced stream rather than a legitimate response.
	maxFrameSize = 1 << 20
)

// readTimeout bounds how long we wait for a response payload. A variable
// so tests do not have to sit out the full three seconds.
var readTimeout = 3 * time.Second

// applyXOR masks buf in place with the repeating key. An empty key is the
// identity; the very first exchange of a session runs unmasked.
func applyXOR(buf, key []byte) {
	if len(key) == 0 {
		return
	}
	for i := range buf {
		buf[i] ^= key[i%len(key)]
	}
}

// writeFrame masks payload and writes one framed message:
// [u32 LE id][u32 LE len][len bytes XOR-masked payload].
func writeFrame(w io.Writer, id uint32, payload, key []byte) error {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	applyXOR(buf[frameHeaderSize:], key)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// payloadSanitizer removes the whitespace the server sprinkles into
// pretty-printed responses before they reach the JSON decoder.
var payloadSanitizer = strings.NewReplacer("\r", "", "\n", "", "\t", "")

// readFrame reads one framed message from conn and returns the unmasked,
// sanitized payload. The header is awaited indefinitely (responses may
// take a while to start); the body must arrive within readTimeout.
func readFrame(conn net.Conn, key []byte) (string, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return "", fmt.Errorf("reading frame header: %w", err)
	}

	// The leading id is echoed by the server and carries no meaning here.
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > maxFrameSize {
		return "", invalidData("frame length %d exceeds cap %d", length, maxFrameSize)
	}
	if length == 0 {
		return "", nil
	}

	payload := make([]byte, length)
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return "", fmt.Errorf("setting read deadline: %w", err)
	}
	_, err := io.ReadFull(conn, payload)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("reading frame payload: %w", err)
	}

	applyXOR(payload, key)
	return payloadSanitizer.Replace(strings.ToValidUTF8(string(payload), "�")), nil
}
