package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gorilla/websocket"
	wire "github.com/mbeoliero/smsdesk/pkg/protocol"
	"github.com/mbeoliero/smsdesk/sdk/conversation"
)

// Client talks to an smsdesk server over HTTP and the real-time channel, and keeps
// a local conversation store fed by the event stream.
type Client struct {
	baseURL    string
	httpClient *client.Client
	dialer     *websocket.Dialer
	self       string
	onEvent    func(*wire.Envelope)
	store      *conversation.Store

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending map[string]chan *wire.Envelope
	reqSeq  uint64
	done    chan struct{}
}

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithHertzClient sets a custom Hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithDialer sets a custom websocket dialer
func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithSelf sets the local sender number recorded on optimistic messages
func WithSelf(number string) ClientOption {
	return func(c *Client) {
		c.self = number
	}
}

// WithEventHandler registers a callback for every server event, after the
// store has applied it. It runs on the read goroutine and must not block.
func WithEventHandler(fn func(*wire.Envelope)) ClientOption {
	return func(c *Client) {
		c.onEvent = fn
	}
}

// NewClient creates a new SDK client
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithClientReadTimeout(30*time.Second),
		client.WithWriteTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		dialer:     websocket.DefaultDialer,
		pending:    make(map[string]chan *wire.Envelope),
	}

	for _, opt := range opts {
		opt(c)
	}
	c.store = conversation.NewStore(c.self)

	return c, nil
}

// MustNewClient creates a new SDK client and panics on error
func MustNewClient(baseURL string, opts ...ClientOption) *Client {
	c, err := NewClient(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Store returns the local conversation store
func (c *Client) Store() *conversation.Store {
	return c.store
}

// Health calls the health probe
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	resp, err := c.do(ctx, consts.MethodGet, PathHealth, nil)
	if err != nil {
		return nil, err
	}

	var info HealthInfo
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &info, nil
}

// Submit sends a message through the synchronous HTTP surface. The store is not
// touched; the confirmed message arrives on the event stream if connected.
func (c *Client) Submit(ctx context.Context, to, body string) (*wire.SendResult, error) {
	resp, err := c.do(ctx, consts.MethodPost, PathMessages, &SubmitRequest{To: to, Body: body})
	if err != nil {
		return nil, err
	}

	var result wire.SendResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		return &result, fromInfo(result.Error)
	}
	return &result, nil
}

// Presence lists registered identities
func (c *Client) Presence(ctx context.Context) (*PresenceInfo, error) {
	resp, err := c.do(ctx, consts.MethodGet, PathPresence, nil)
	if err != nil {
		return nil, err
	}

	var apiResp Response
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !apiResp.Success {
		return nil, fromInfo(apiResp.Error)
	}

	var info PresenceInfo
	if err := json.Unmarshal(apiResp.Data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	return &info, nil
}

// do makes an HTTP request with an optional JSON body
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*protocol.Response, error) {
	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBody(jsonBody)
	}

	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode() != consts.StatusOK {
		return nil, NewError(CodeInternalServer, fmt.Sprintf("unexpected status %d", resp.StatusCode()))
	}
	return resp, nil
}
