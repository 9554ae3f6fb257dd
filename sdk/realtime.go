package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	wire "github.com/mbeoliero/smsdesk/pkg/protocol"
)

// Connect opens the real-time channel. The local store starts empty on every
// connect: events emitted while disconnected are not replayed.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("already connected")
	}
	c.conn = conn
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.store.Reset()
	go c.readLoop(conn, done)
	return nil
}

// Done is closed when the current connection ends
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Register asks the server to route traffic for identity to this connection
func (c *Client) Register(ctx context.Context, identity string) error {
	env, err := c.request(ctx, wire.EventRegister, &wire.RegisterData{Identity: identity})
	if err != nil {
		return err
	}
	if env.Event == wire.EventError {
		return decodeError(env)
	}
	return nil
}

// Send appends an optimistic message to the store and submits it over the
// real-time channel. The entry is marked failed if the send does not succeed.
func (c *Client) Send(ctx context.Context, to, body string) (*wire.SendResult, error) {
	optimistic := c.store.AddOptimistic(to, body)

	result, err := c.send(ctx, &wire.SendMessageData{To: to, Body: body, Timestamp: optimistic.Timestamp})
	if err != nil {
		c.store.MarkFailed(optimistic.Timestamp, optimistic.Body)
		return result, err
	}
	c.store.Confirm(optimistic.Timestamp, optimistic.Body, result)
	return result, nil
}

func (c *Client) send(ctx context.Context, data *wire.SendMessageData) (*wire.SendResult, error) {
	env, err := c.request(ctx, wire.EventSendMessage, data)
	if err != nil {
		return nil, err
	}
	if env.Event == wire.EventError {
		return nil, decodeError(env)
	}

	var result wire.SendResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode send result: %w", err)
	}
	if !result.Success {
		return &result, fromInfo(result.Error)
	}
	return &result, nil
}

// Close closes the real-time channel
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// request writes one event and waits for the reply carrying the same req_id
func (c *Client) request(ctx context.Context, event string, data interface{}) (*wire.Envelope, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.reqSeq++
	reqId := strconv.FormatUint(c.reqSeq, 10)
	reply := make(chan *wire.Envelope, 1)
	c.pending[reqId] = reply
	done := c.done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, reqId)
		c.mu.Unlock()
	}()

	frame, err := wire.NewEnvelope(event, reqId, data)
	if err != nil {
		return nil, err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", event, err)
	}

	select {
	case env := <-reply:
		return env, nil
	case <-done:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop applies broadcast events to the store and routes replies to waiters
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		close(done)
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			continue
		}

		// Conversation events first, so a waiter sees the store already updated
		_ = c.store.ApplyEvent(&env)

		if env.ReqId != "" {
			c.mu.Lock()
			reply, ok := c.pending[env.ReqId]
			c.mu.Unlock()
			if ok {
				select {
				case reply <- &env:
				default:
				}
			}
		}

		if c.onEvent != nil {
			c.onEvent(&env)
		}
	}
}

func (c *Client) wsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + PathWs
}

func decodeError(env *wire.Envelope) error {
	var info wire.ErrorInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return fmt.Errorf("failed to decode error event: %w", err)
	}
	return fromInfo(&info)
}
