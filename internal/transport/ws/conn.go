package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsConn struct {
	id   string
	conn *websocket.Conn
	log  *slog.Logger

	send     chan []byte
	closed   chan struct{}
	done     chan struct{} // writePump вышел
	once     sync.Once
	closeMsg []byte // written before closed is closed

	pingEvery    time.Duration
	writeTimeout time.Duration
}

func newWsConn(id string, c *websocket.Conn, cfg Config, log *slog.Logger) *wsConn {
	return &wsConn{
		id:           id,
		conn:         c,
		log:          log,
		send:         make(chan []byte, cfg.SendBuffer),
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
		pingEvery:    cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *wsConn) ID() string { return c.id }

// Enqueue never blocks. It runs inside room commits, so the overflow path
// must not wait on the socket either.
func (c *wsConn) Enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		// клиент не успевает читать: отключаем его, остальные не ждут
		c.log.Warn("ws send queue full, closing connection", "queued", len(c.send))
		c.abort()
		return false
	}
}

// Close asks the writer to send a normal close frame and drop the socket.
func (c *wsConn) Close() error {
	c.closeWith(websocket.CloseNormalClosure, "")
	return nil
}

// Shutdown closes the connection telling the client the server is going away.
func (c *wsConn) Shutdown() error {
	c.closeWith(websocket.CloseGoingAway, "server shutdown")
	return nil
}

// closeWith only signals writePump, which owns every write to the socket.
func (c *wsConn) closeWith(code int, text string) {
	c.once.Do(func() {
		c.closeMsg = websocket.FormatCloseMessage(code, text)
		close(c.closed)
	})
}

// abort drops a stalled peer without a close frame. Closing the underlying
// net.Conn does not take gorilla's write lock and unblocks a pending write.
func (c *wsConn) abort() {
	c.closeWith(websocket.ClosePolicyViolation, "send queue overflow")
	_ = c.conn.Close()
}

// wait blocks until writePump has stopped, at most one write timeout after
// the connection was closed.
func (c *wsConn) wait() { <-c.done }

// writePump is the only writer of the socket.
func (c *wsConn) writePump() {
	defer close(c.done)
	defer func() { _ = c.conn.Close() }()

	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("ws write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.log.Debug("ws ping failed", "err", err)
				return
			}
		case <-c.closed:
			_ = c.conn.WriteControl(websocket.CloseMessage, c.closeMsg, time.Now().Add(c.writeTimeout))
			return
		}
	}
}
