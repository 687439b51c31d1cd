package protocol

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	hash := sha1.Sum([]byte(strings.TrimSpace(key) + webSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// UpgradeResponse is the fixed 101 response for a client key.
func UpgradeResponse(key string) string {
	var sb strings.Builder
	sb.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n")
	sb.WriteString("\r\n")
	return sb.String()
}

// Negotiate reads the HTTP upgrade request from r and writes the 101 response
// to w. Bytes following the request stay buffered in r for the frame reader.
// On error the connection is unusable and must be closed by the caller.
func Negotiate(r *bufio.Reader, w io.Writer) (*http.Request, error) {
	req, err := http.ReadRequest(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading upgrade request: %w", ErrProtocol, err)
	}
	if req.Body != nil {
		req.Body.Close()
	}

	key := strings.TrimSpace(req.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return nil, fmt.Errorf("%w: missing Sec-WebSocket-Key header", ErrProtocol)
	}
	if decoded, err := base64.StdEncoding.DecodeString(key); err != nil || len(decoded) != 16 {
		return nil, fmt.Errorf("%w: malformed Sec-WebSocket-Key %q", ErrProtocol, key)
	}

	if _, err := io.WriteString(w, UpgradeResponse(key)); err != nil {
		return nil, fmt.Errorf("writing upgrade response: %w", err)
	}
	return req, nil
}

// badRequest is written before closing a connection whose handshake failed.
const badRequest = "HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"

// Reject writes a 400 response. Errors are ignored, the connection is about
// to be closed anyway.
func Reject(w io.Writer) {
	_, _ = io.WriteString(w, badRequest)
}
