// Package transport carries the client byte stream over TCP or WebSocket.
// Both present the same polled Conn to the session loop.
package transport

import "errors"

// Conn is a client connection polled by the session loop.
type Conn interface {
	// TryReceive copies pending data into buf without blocking for long.
	// It returns (0, nil) when nothing arrived. A closed connection returns
	// io.EOF or ErrPeerClosed.
	TryReceive(buf []byte) (int, error)

	// Send writes one frame.
	Send(p []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}

// CloseByte is the client's request to hang up. It ends the chunk it
// arrives in; data before it in the same chunk is still delivered.
const CloseByte = 0x88

// ErrPeerClosed is returned by TryReceive when the client sent CloseByte.
var ErrPeerClosed = errors.New("transport: peer requested close")

// splitClose strips a trailing CloseByte from a received chunk and reports
// whether it was there.
func splitClose(p []byte) ([]byte, bool) {
	if n := len(p); n > 0 && p[n-1] == CloseByte {
		return p[:n-1], true
	}
	return p, false
}
