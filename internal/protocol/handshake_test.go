package protocol

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKey = "dGhlIHNhbXBsZSBub25jZQ=="

func upgradeRequest(key string) string {
	var sb strings.Builder
	sb.WriteString("GET /chat HTTP/1.1\r\n")
	sb.WriteString("Host: localhost:8000\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	if key != "" {
		sb.WriteString("Sec-WebSocket-Key: " + key + "\r\n")
	}
	sb.WriteString("Sec-WebSocket-Version: 13\r\n\r\n")
	return sb.String()
}

func TestAcceptKey(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey(sampleKey))
	assert.Equal(t, AcceptKey(sampleKey), AcceptKey("  "+sampleKey+" "), "key is trimmed")
}

func TestNegotiate(t *testing.T) {
	trailing := clientFrame([]byte("hi"), OpText, [4]byte{1, 2, 3, 4})
	in := bufio.NewReader(strings.NewReader(upgradeRequest(sampleKey) + string(trailing)))
	var out bytes.Buffer

	req, err := Negotiate(in, &out)
	require.NoError(t, err)
	assert.Equal(t, "/chat", req.URL.Path)

	resp := out.String()
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n"))
	assert.Contains(t, resp, "Upgrade: websocket\r\n")
	assert.Contains(t, resp, "Connection: Upgrade\r\n")
	assert.Contains(t, resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n"))

	raw, err := ReadFrame(in, 0)
	require.NoError(t, err, "frames after the request stay readable")
	frame, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(frame.Payload))
}

func TestNegotiateFailures(t *testing.T) {
	tests := []struct {
		name    string
		request string
	}{
		{"missing key", upgradeRequest("")},
		{"malformed key", upgradeRequest("not-base64!")},
		{"short key", upgradeRequest("c2hvcnQ=")},
		{"not http", "hello there\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := Negotiate(bufio.NewReader(strings.NewReader(tt.request)), &out)
			assert.ErrorIs(t, err, ErrProtocol)
			assert.Empty(t, out.String())
		})
	}
}
