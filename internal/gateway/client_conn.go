package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/smsdesk/internal/config"
)

// ClientConn represents a WebSocket connection wrapper
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// connOptions are the per-connection limits and keepalive timings
type connOptions struct {
	maxMessageSize   int64
	writeWait        time.Duration
	pongWait         time.Duration
	pingPeriod       time.Duration
	writeChannelSize int
}

func newConnOptions(cfg config.WebSocketConfig) connOptions {
	opts := connOptions{
		maxMessageSize:   cfg.MaxMessageSize,
		writeWait:        cfg.WriteWait,
		pongWait:         cfg.PongWait,
		pingPeriod:       cfg.PingPeriod,
		writeChannelSize: cfg.WriteChannelSize,
	}
	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}
	if opts.writeChannelSize <= 0 {
		opts.writeChannelSize = defaultWriteChannelSize
	}
	return opts
}

// websocketClientConn implements ClientConn using gorilla/websocket
type websocketClientConn struct {
	conn      *websocket.Conn
	opts      connOptions
	writeChan chan []byte
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

// NewWebSocketClientConn wraps conn and starts its write loop
func NewWebSocketClientConn(conn *websocket.Conn, opts connOptions) *websocketClientConn {
	c := &websocketClientConn{
		conn:      conn,
		opts:      opts,
		writeChan: make(chan []byte, opts.writeChannelSize),
	}

	conn.SetReadLimit(opts.maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.pongWait))
	})

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine writing to the socket
func (c *websocketClientConn) writeLoop() {
	ticker := time.NewTicker(c.opts.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.writeChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn("write message error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ping error: %v", err)
				return
			}
		}
	}
}

// ReadMessage reads a message from the connection
func (c *websocketClientConn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait))
	_, message, err := c.conn.ReadMessage()
	return message, err
}

// WriteMessage queues a frame; a slow consumer gets ErrWriteChannelFull
func (c *websocketClientConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.writeChan <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

// Close flushes queued frames, sends a close frame and closes the socket
func (c *websocketClientConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()
	})
	return nil
}

// SetReadDeadline sets the read deadline
func (c *websocketClientConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline
func (c *websocketClientConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
