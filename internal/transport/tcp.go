package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sweeney/webhouse/internal/logger"
)

// Timeouts for TCP connections.
const (
	// DefaultPollTimeout bounds how long TryReceive waits for data.
	DefaultPollTimeout = time.Millisecond

	// DefaultWriteTimeout bounds a single Send so a stuck peer cannot stall the loop.
	DefaultWriteTimeout = 5 * time.Second
)

// TCPConn adapts a net.Conn.
type TCPConn struct {
	conn         net.Conn
	pollTimeout  time.Duration
	writeTimeout time.Duration

	// closing is set once CloseByte arrived behind other data.
	closing bool
}

// NewTCPConn wraps c with the default timeouts.
func NewTCPConn(c net.Conn) *TCPConn {
	return &TCPConn{conn: c, pollTimeout: DefaultPollTimeout, writeTimeout: DefaultWriteTimeout}
}

// TryReceive reads whatever arrives within the poll timeout.
func (c *TCPConn) TryReceive(buf []byte) (int, error) {
	if c.closing {
		return 0, ErrPeerClosed
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pollTimeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}

	n, err := c.conn.Read(buf)
	if data, closing := splitClose(buf[:n]); closing {
		if len(data) == 0 {
			return 0, ErrPeerClosed
		}
		c.closing = true
		return len(data), nil
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// Send writes p in full.
func (c *TCPConn) Send(p []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := c.conn.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close closes the socket.
func (c *TCPConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *TCPConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// TCPListener accepts client connections.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP listens on addr, e.g. ":5000".
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

// Addr returns the bound address.
func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections and hands them to conns until ctx is done.
// The listener is closed on return.
func (l *TCPListener) Serve(ctx context.Context, conns chan<- Conn) error {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()
	defer l.ln.Close()

	for {
		c, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		logger.Debugf(ctx, "transport: tcp connection from %s", c.RemoteAddr())
		select {
		case conns <- NewTCPConn(c):
		case <-ctx.Done():
			c.Close()
			return nil
		}
	}
}

// Close stops accepting.
func (l *TCPListener) Close() error {
	return l.ln.Close()
}
