package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/webhouse/internal/logger"
)

const (
	wsReadLimit   = 4096
	wsInboxSize   = 16
	wsCloseWait   = time.Second
	wsWriteWindow = DefaultWriteTimeout
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The house page may be served from anywhere on the LAN.
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// WSHandler upgrades HTTP requests and hands the resulting connections to
// the session loop.
type WSHandler struct {
	ctx   context.Context
	conns chan<- Conn
}

// NewWSHandler returns a handler delivering connections to conns until ctx is done.
func NewWSHandler(ctx context.Context, conns chan<- Conn) *WSHandler {
	return &WSHandler{ctx: ctx, conns: conns}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf(h.ctx, "transport: websocket upgrade failed: %v", err)
		return
	}

	c := newWSConn(ws)
	go c.readPump()

	logger.Debugf(h.ctx, "transport: websocket connection from %s", c.RemoteAddr())
	select {
	case h.conns <- c:
	case <-h.ctx.Done():
		c.Close()
	case <-r.Context().Done():
		c.Close()
	}
}

// WSConn adapts a websocket connection. Each text or binary message is one chunk.
type WSConn struct {
	ws    *websocket.Conn
	inbox chan []byte

	// readErr is set by readPump before inbox is closed.
	readErr error

	// closing is set once CloseByte arrived behind other data.
	closing bool

	done chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *WSConn {
	ws.SetReadLimit(wsReadLimit)
	return &WSConn{ws: ws, inbox: make(chan []byte, wsInboxSize), done: make(chan struct{})}
}

func (c *WSConn) readPump() {
	defer close(c.inbox)

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
				errors.Is(err, net.ErrClosed) {
				c.readErr = io.EOF
			} else {
				c.readErr = err
			}
			return
		}
		select {
		case c.inbox <- msg:
		case <-c.done:
			c.readErr = io.EOF
			return
		}
	}
}

// TryReceive returns the next queued message, truncated to len(buf).
func (c *WSConn) TryReceive(buf []byte) (int, error) {
	if c.closing {
		return 0, ErrPeerClosed
	}
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return 0, c.readErr
		}
		data, closing := splitClose(msg)
		if closing {
			if len(data) == 0 {
				return 0, ErrPeerClosed
			}
			c.closing = true
		}
		return copy(buf, data), nil
	default:
		return 0, nil
	}
}

// Send writes p as one text message.
func (c *WSConn) Send(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteWindow)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// RemoteAddr returns the peer address.
func (c *WSConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
