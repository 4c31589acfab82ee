package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Connection lifecycle tuning, grounded on the teacher's ws_control_plane.go
// constants for the same concerns (heartbeat interval, pong deadline, write
// deadline, max payload size).
const (
	pingInterval   = 15 * time.Second
	pongWait       = 45 * time.Second
	writeWait      = 10 * time.Second
	maxPayloadSize = 1 << 20

	// outboundQueueHighWaterMark is the backpressure threshold from spec.md
	// §4.6: once a connection's outbound queue holds this many unsent
	// envelopes, the connection is considered unhealthy and closed.
	outboundQueueHighWaterMark = 256
)

// Upgrader builds a websocket.Upgrader with the runtime's accepted origin
// policy. CheckOrigin is permissive by default, matching the teacher's
// control plane; callers embedding this in an HTTP-exposed server should
// tighten it via a wrapped http.Handler if needed.
func Upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// Connection wraps one active WebSocket for one chat_id. A chat_id has at
// most one live Connection; registering a new one supersedes any prior one
// (spec.md §4.6).
type Connection struct {
	chatID string
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	logger *slog.Logger

	// onClose is invoked once, from whichever pump notices the connection is
	// gone, so the Hub can detach it from chat state.
	onClose func()

	// onInbound is set by the Hub via setInboundHandler before Run is
	// called, so readPump can route decoded frames without this package
	// depending on the Hub's internals.
	onInbound func([]byte)
}

// NewConnection wraps an upgraded *websocket.Conn for chatID.
func NewConnection(chatID string, conn *websocket.Conn, logger *slog.Logger, onClose func()) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		chatID:  chatID,
		conn:    conn,
		send:    make(chan []byte, outboundQueueHighWaterMark),
		closed:  make(chan struct{}),
		logger:  logger,
		onClose: onClose,
	}
}

// Run starts the read and write pumps and blocks until the connection ends.
func (c *Connection) Run() {
	go c.writePump()
	c.readPump()
}

// Enqueue sends data to the client. If the outbound queue is already at its
// high-water mark, the connection is treated as unhealthy and closed per
// spec.md §4.6's backpressure policy; the session keeps running server-side
// and the client is expected to reconnect with a resume request.
func (c *Connection) Enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("transport backpressure, closing connection", "chat_id", c.chatID)
		c.Close()
		return false
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Connection) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	_ = c.conn.Close()
}

func (c *Connection) readPump() {
	defer c.finish()

	c.conn.SetReadLimit(maxPayloadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if c.onInbound != nil {
			c.onInbound(data)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.finish()

	for {
		select {
		case <-c.closed:
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) finish() {
	c.Close()
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Connection) setInboundHandler(fn func([]byte)) {
	c.onInbound = fn
}
