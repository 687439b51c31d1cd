// Package protocol implements the WebSocket wire format used by the chat
// server: the opening handshake and the frame codec.
//
// The codec intentionally targets the browser clients of this server rather
// than full RFC 6455 conformance. Outgoing frames are never fragmented or
// masked, and a plain text frame carrying "ping" doubles as a keep-alive.
package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Opcode identifies the type of frame.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(0x%x)", byte(o))
	}
}

// IsControl reports whether the opcode is a control frame opcode.
func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

const (
	finBit      = 0x80
	maskBit     = 0x80
	lengthMask  = 0x7F
	length16    = 126
	length64    = 127
	maxLength16 = 0xFFFF

	// Close status sent when a peer exceeds its message rate.
	ClosePolicyViolation = 1008
)

// Frame is a decoded frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// Encode builds a single unmasked frame with the FIN bit set.
func Encode(payload []byte, op Opcode) []byte {
	n := len(payload)

	var header []byte
	switch {
	case n < length16:
		header = []byte{finBit | byte(op), byte(n)}
	case n <= maxLength16:
		header = make([]byte, 4)
		header[0] = finBit | byte(op)
		header[1] = length16
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = finBit | byte(op)
		header[1] = length64
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}

	out := make([]byte, len(header)+n)
	copy(out, header)
	copy(out[len(header):], payload)
	return out
}

// EncodeClose builds a close frame carrying a status code and reason.
func EncodeClose(code int, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return Encode(payload, OpClose)
}

// headerLayout returns the offsets of the masking key and the payload for a
// frame whose second byte is b1.
func headerLayout(b1 byte) (maskAt, payloadAt int) {
	switch b1 & lengthMask {
	case length16:
		maskAt = 4
	case length64:
		maskAt = 10
	default:
		maskAt = 2
	}
	payloadAt = maskAt
	if b1&maskBit != 0 {
		payloadAt += 4
	}
	return maskAt, payloadAt
}

// payloadLength reads the declared payload length. raw must hold the full
// extended length field.
func payloadLength(raw []byte) uint64 {
	switch n := raw[1] & lengthMask; n {
	case length16:
		return uint64(binary.BigEndian.Uint16(raw[2:4]))
	case length64:
		return binary.BigEndian.Uint64(raw[2:10])
	default:
		return uint64(n)
	}
}

// Decode parses one complete frame held in raw and returns it with the
// payload unmasked.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: frame shorter than 2 bytes", ErrProtocol)
	}
	maskAt, payloadAt := headerLayout(raw[1])
	if len(raw) < payloadAt {
		return nil, fmt.Errorf("%w: truncated frame header", ErrProtocol)
	}

	length := payloadLength(raw)
	if uint64(len(raw)-payloadAt) < length {
		return nil, fmt.Errorf("%w: payload shorter than declared length %d", ErrProtocol, length)
	}

	payload := make([]byte, length)
	copy(payload, raw[payloadAt:payloadAt+int(length)])
	if raw[1]&maskBit != 0 {
		var mask [4]byte
		copy(mask[:], raw[maskAt:maskAt+4])
		Unmask(payload, mask)
	}

	return &Frame{
		Fin:     raw[0]&finBit != 0,
		Opcode:  Opcode(raw[0] & 0x0F),
		Payload: payload,
	}, nil
}

// Unmask XORs data in place with the masking key. Applying it twice with the
// same key restores the input.
func Unmask(data []byte, mask [4]byte) {
	for i := range data {
		data[i] ^= mask[i%4]
	}
}

// ReadFrame reads the raw bytes of exactly one frame from r, header and
// masking key included, so they can be handed to Decode. Payloads larger
// than maxPayload are rejected with ErrProtocol before being read.
func ReadFrame(r *bufio.Reader, maxPayload int) ([]byte, error) {
	head := make([]byte, 2, 14)
	if _, err := io.ReadFull(r, head); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	_, payloadAt := headerLayout(head[1])
	head = head[:payloadAt]
	if _, err := io.ReadFull(r, head[2:]); err != nil {
		return nil, err
	}

	length := payloadLength(head)
	if maxPayload > 0 && length > uint64(maxPayload) {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds limit of %d", ErrProtocol, length, maxPayload)
	}

	raw := make([]byte, payloadAt+int(length))
	copy(raw, head)
	if _, err := io.ReadFull(r, raw[payloadAt:]); err != nil {
		return nil, err
	}
	return raw, nil
}

// IsPing reports whether a text payload is the application level keep-alive.
func IsPing(payload []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(payload)), "ping")
}

// Pong is the reply to an application level ping.
func Pong() []byte {
	return Encode([]byte("PONG"), OpPong)
}
