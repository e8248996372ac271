package rcon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiseops/wise/internal/testutil"
)

func TestApplyXOR_RoundTrip(t *testing.T) {
	key := []byte{0x61, 0x62, 0x63, 0x64}
	payload := []byte(`{"statusCode":200,"name":"Login"}`)

	masked := bytes.Clone(payload)
	applyXOR(masked, key)
	assert.NotEqual(t, payload, masked)

	applyXOR(masked, key)
	assert.Equal(t, payload, masked)
}

func TestApplyXOR_EmptyKeyIsIdentity(t *testing.T) {
	payload := []byte("untouched")
	masked := bytes.Clone(payload)

	applyXOR(masked, nil)
	assert.Equal(t, payload, masked)
}

func TestWriteReadFrame(t *testing.T) {
	client, server := testutil.PipeConn(t)
	key := []byte("secret")
	payload := []byte(`{"name":"ServerInformation"}`)

	done := make(chan error, 1)
	go func() {
		done <- writeFrame(client, 7, payload, key)
	}()

	body, err := readFrame(server, key)
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, string(payload), body)
}

func TestReadFrame_ZeroLengthIsValid(t *testing.T) {
	client, server := testutil.PipeConn(t)

	go func() {
		var header [8]byte
		binary.LittleEndian.PutUint32(header[0:4], 1)
		_, _ = client.Write(header[:])
	}()

	body, err := readFrame(server, []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, "", body)
}

func TestReadFrame_OversizeLengthRejected(t *testing.T) {
	client, server := testutil.PipeConn(t)

	go func() {
		var header [8]byte
		binary.LittleEndian.PutUint32(header[4:8], maxFrameSize+1)
		_, _ = client.Write(header[:])
	}()

	_, err := readFrame(server, nil)

	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)
}

func TestReadFrame_StripsPrettyPrintWhitespace(t *testing.T) {
	client, server := testutil.PipeConn(t)
	payload := []byte("{\n\t\"statusCode\": 200\r\n}")

	go func() {
		_ = writeFrame(client, 1, payload, nil)
	}()

	body, err := readFrame(server, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"statusCode": 200}`, body)
}

func TestReadFrame_TimeoutOnMissingBody(t *testing.T) {
	oldTimeout := readTimeout
	readTimeout = 50 * time.Millisecond
	t.Cleanup(func() { readTimeout = oldTimeout })

	ln, addr := testutil.ListenTCP(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Header promises a body that never arrives.
		var header [8]byte
		binary.LittleEndian.PutUint32(header[4:8], 64)
		_, _ = conn.Write(header[:])
	}()

	conn, err := testutil.DialTCP(t, addr)
	require.NoError(t, err)

	_, err = readFrame(conn, nil)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestDecodeResponse(t *testing.T) {
	resp, err := decodeResponse(`{"statusCode":200,"statusMessage":"OK","version":2,"name":"Login","contentBody":"tok"}`)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "tok", resp.ContentBody)
}

func TestDecodeResponse_NonStringBodyRejected(t *testing.T) {
	_, err := decodeResponse(`{"statusCode":200,"contentBody":{"nested":true}}`)

	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)
}
