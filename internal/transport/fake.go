package transport

import (
	"io"
	"sync"
)

// FakeConn is a test double for Conn. Inbound chunks are queued with Push.
type FakeConn struct {
	mu sync.Mutex

	inbox   [][]byte
	sent    [][]byte
	closed  bool
	hangup  bool
	closing bool

	// Addr is returned by RemoteAddr.
	Addr string

	// SendError, if set, is returned by Send.
	SendError error

	// ReceiveError, if set, is returned by the next TryReceive and then cleared.
	ReceiveError error
}

// NewFakeConn creates a FakeConn.
func NewFakeConn(addr string) *FakeConn {
	return &FakeConn{Addr: addr}
}

// Push queues one inbound chunk.
func (f *FakeConn) Push(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, append([]byte(nil), p...))
}

// Hangup makes TryReceive report io.EOF once the inbox is drained.
func (f *FakeConn) Hangup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangup = true
}

// TryReceive returns the next queued chunk.
func (f *FakeConn) TryReceive(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReceiveError != nil {
		err := f.ReceiveError
		f.ReceiveError = nil
		return 0, err
	}
	if f.closing {
		return 0, ErrPeerClosed
	}
	if len(f.inbox) == 0 {
		if f.hangup {
			return 0, io.EOF
		}
		return 0, nil
	}

	p := f.inbox[0]
	f.inbox = f.inbox[1:]
	data, closing := splitClose(p)
	if closing {
		if len(data) == 0 {
			return 0, ErrPeerClosed
		}
		f.closing = true
	}
	return copy(buf, data), nil
}

// Send records p.
func (f *FakeConn) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}

// Close marks the connection closed.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// RemoteAddr returns Addr.
func (f *FakeConn) RemoteAddr() string {
	return f.Addr
}

// Sent returns the frames sent so far as strings.
func (f *FakeConn) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = string(p)
	}
	return out
}

// Closed reports whether Close was called.
func (f *FakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
