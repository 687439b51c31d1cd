package protocol

import "errors"

// ErrProtocol marks a malformed handshake or frame. The connection that
// produced it is closed without notifying the peer.
var ErrProtocol = errors.New("protocol error")
