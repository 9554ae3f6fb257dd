package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/smsdesk/internal/relay"
	"github.com/mbeoliero/smsdesk/pkg/errcode"
	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// Client represents a connected WebSocket client
type Client struct {
	mu        sync.Mutex
	conn      ClientConn
	ConnId    string
	server    *WsServer
	closed    atomic.Bool
	closedErr error
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:   conn,
		ConnId: connId,
		server: server,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: conn_id=%s, error=%v", c.ConnId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: conn_id=%s, error=%v", c.ConnId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: conn_id=%s, error=%v", c.ConnId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming frame. Protocol errors are reported to
// the client as error events; only a failed write ends the connection.
func (c *Client) handleMessage(message []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return c.replyError("", errcode.ErrInvalidProtocol.Wrap(err))
	}

	log.CtxDebug(c.ctx, "received event: event=%s, conn_id=%s", env.Event, c.ConnId)

	switch env.Event {
	case protocol.EventRegister:
		return c.handleRegister(&env)
	case protocol.EventSendMessage:
		return c.handleSendMessage(&env)
	default:
		return c.replyError(env.ReqId, errcode.ErrUnknownEvent.Wrap(errUnknown(env.Event)))
	}
}

// handleRegister maps the requested identity to this connection
func (c *Client) handleRegister(env *protocol.Envelope) error {
	var data protocol.RegisterData
	if err := decodeData(env, &data); err != nil {
		return c.replyError(env.ReqId, errcode.ErrInvalidProtocol.Wrap(err))
	}

	identity := strings.TrimSpace(data.Identity)
	if identity == "" {
		return c.replyError(env.ReqId, errcode.ErrInvalidParam.Wrap(errMissing("identity")))
	}

	c.server.presence.Register(c.ctx, identity, c.ConnId)
	return c.reply(protocol.EventRegistered, env.ReqId, &protocol.RegisterData{Identity: identity})
}

// handleSendMessage submits an outbound message and answers this connection only
func (c *Client) handleSendMessage(env *protocol.Envelope) error {
	var data protocol.SendMessageData
	if err := decodeData(env, &data); err != nil {
		return c.replyError(env.ReqId, errcode.ErrInvalidProtocol.Wrap(err))
	}

	res, err := c.server.sender.Send(c.ctx, &relay.SendRequest{
		To:        data.To,
		Body:      data.Body,
		Timestamp: data.Timestamp,
	})
	if err != nil {
		return c.reply(protocol.EventSendResult, env.ReqId, sendResult(nil, err))
	}
	return c.reply(protocol.EventSendResult, env.ReqId, sendResult(res, nil))
}

// reply sends an event to this client
func (c *Client) reply(event, reqId string, data interface{}) error {
	frame, err := encodeEvent(event, reqId, data)
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// replyError sends an error event to this client
func (c *Client) replyError(reqId string, err error) error {
	log.CtxDebug(c.ctx, "protocol error: conn_id=%s, error=%v", c.ConnId, err)
	frame, encErr := encodeError(reqId, err)
	if encErr != nil {
		return encErr
	}
	return c.writeFrame(frame)
}

// writeFrame queues an encoded frame on the connection
func (c *Client) writeFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.conn.WriteMessage(frame)
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

func decodeData(env *protocol.Envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return errMissing("data")
	}
	return json.Unmarshal(env.Data, v)
}
