package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mbeoliero/smsdesk/internal/carrier"
	"github.com/mbeoliero/smsdesk/internal/config"
	"github.com/mbeoliero/smsdesk/internal/gateway"
	"github.com/mbeoliero/smsdesk/internal/metrics"
	"github.com/mbeoliero/smsdesk/internal/presence"
	"github.com/mbeoliero/smsdesk/internal/relay"
	"github.com/mbeoliero/smsdesk/pkg/idgen"
	wire "github.com/mbeoliero/smsdesk/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	desk     = "+18005550100"
	customer = "+15551230000"
)

type failingCarrier struct{}

func (failingCarrier) Submit(ctx context.Context, s *carrier.Submission) (*carrier.Receipt, error) {
	return nil, &carrier.Error{HTTPStatus: http.StatusBadRequest, Code: 21211, Message: "invalid To"}
}

type testServer struct {
	relay *relay.Relay
	ws    *gateway.WsServer
	url   string
}

// newTestServer runs the relay and websocket server behind net/http, with a
// minimal JSON rendition of the HTTP surface
func newTestServer(t *testing.T, submitter carrier.Submitter) *testServer {
	t.Helper()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	m := metrics.New()
	registry := presence.NewRegistry(nil, time.Minute)
	r := relay.New(submitter, registry, m, relay.Options{From: desk, DefaultRegion: "US"})
	ws := gateway.NewWsServer(cfg, registry, r, m)
	r.SetBroadcaster(ws)

	ctx, cancel := context.WithCancel(context.Background())
	ws.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle(PathWs, ws)
	mux.HandleFunc(PathHealth, func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(&HealthInfo{Status: "ok"})
	})
	mux.HandleFunc(PathMessages, func(w http.ResponseWriter, req *http.Request) {
		var body SubmitRequest
		json.NewDecoder(req.Body).Decode(&body)
		res, err := r.Send(req.Context(), &relay.SendRequest{To: body.To, Body: body.Body})
		if err != nil {
			json.NewEncoder(w).Encode(&wire.SendResult{Error: &wire.ErrorInfo{Code: CodeCarrierRejected, Message: err.Error()}})
			return
		}
		json.NewEncoder(w).Encode(&wire.SendResult{Success: true, ExternalId: res.ExternalId, Status: res.Status})
	})
	mux.HandleFunc(PathPresence, func(w http.ResponseWriter, req *http.Request) {
		data, _ := json.Marshal(&PresenceInfo{Connections: ws.GetOnlineConnCount()})
		json.NewEncoder(w).Encode(&Response{Success: true, Data: data})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ws.CloseAll()
		ts.Close()
		cancel()
	})

	return &testServer{relay: r, ws: ws, url: ts.URL}
}

func connect(t *testing.T, srv *testServer, opts ...ClientOption) *Client {
	t.Helper()
	want := srv.ws.GetOnlineConnCount() + 1

	c := MustNewClient(srv.url, opts...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })

	require.Eventually(t, func() bool {
		return srv.ws.GetOnlineConnCount() == want
	}, time.Second, 5*time.Millisecond)
	return c
}

func TestClient_EndToEnd(t *testing.T) {
	srv := newTestServer(t, carrier.NewLoopback(idgen.NewUUIDGenerator()))
	ctx := context.Background()

	agent := connect(t, srv, WithSelf(desk))
	observer := connect(t, srv)
	require.NoError(t, agent.Register(ctx, customer))

	_, err := srv.relay.HandleInbound(ctx, &relay.InboundMessage{From: customer, To: desk, Body: "Hi", ExternalId: "SID9"})
	require.NoError(t, err)

	for _, c := range []*Client{agent, observer} {
		store := c.Store()
		require.Eventually(t, func() bool {
			return store.Summaries()[customer].UnreadCount == 1
		}, time.Second, 5*time.Millisecond)
	}

	agent.Store().Focus(customer)
	res, err := agent.Send(ctx, customer, "Hello back")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotEmpty(t, res.ExternalId)

	// The optimistic entry and the broadcast confirmation are one message
	require.Eventually(t, func() bool {
		msgs := agent.Store().Conversation(customer)
		return len(msgs) == 2 && msgs[1].ExternalId == res.ExternalId
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, agent.Store().Unread(customer))

	srv.relay.HandleStatus(ctx, &relay.StatusUpdate{ExternalId: res.ExternalId, Status: wire.StatusDelivered})

	require.Eventually(t, func() bool {
		msgs := observer.Store().Conversation(customer)
		return len(msgs) == 2 && msgs[1].Status == wire.StatusDelivered
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, observer.Store().Unread(customer), "focus is local to each client")
}

func TestClient_SendFailureMarksOptimisticFailed(t *testing.T) {
	srv := newTestServer(t, failingCarrier{})
	ctx := context.Background()
	observer := connect(t, srv)
	c := connect(t, srv, WithSelf(desk))

	res, err := c.Send(ctx, customer, "will fail")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCarrierRejected))
	require.NotNil(t, res)
	assert.False(t, res.Success)

	msgs := c.Store().Conversation(customer)
	require.Len(t, msgs, 1)
	assert.Equal(t, wire.StatusFailed, msgs[0].Status)
	assert.Empty(t, msgs[0].ExternalId)

	// Nothing was broadcast
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, observer.Store().Messages())
}

func TestClient_SendToLocalFormatKeepsOneConversation(t *testing.T) {
	srv := newTestServer(t, carrier.NewLoopback(idgen.NewUUIDGenerator()))
	ctx := context.Background()
	agent := connect(t, srv, WithSelf(desk))
	observer := connect(t, srv)

	res, err := agent.Send(ctx, "(415) 555-2671", "hello")
	require.NoError(t, err)
	assert.Equal(t, "+14155552671", res.To)

	_, err = srv.relay.HandleInbound(ctx, &relay.InboundMessage{From: "+14155552671", To: desk, Body: "thanks", ExternalId: "SID7"})
	require.NoError(t, err)

	for _, c := range []*Client{agent, observer} {
		store := c.Store()
		require.Eventually(t, func() bool {
			return len(store.Conversation("+14155552671")) == 2
		}, time.Second, 5*time.Millisecond)
		assert.Len(t, store.Summaries(), 1)
	}
	assert.Empty(t, agent.Store().Conversation("(415) 555-2671"))
}

func TestClient_RegisterRejectsEmptyIdentity(t *testing.T) {
	srv := newTestServer(t, carrier.NewLoopback(idgen.NewUUIDGenerator()))
	c := connect(t, srv)

	err := c.Register(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParam))
}

func TestClient_NotConnected(t *testing.T) {
	c := MustNewClient("http://127.0.0.1:1")

	_, err := c.Send(context.Background(), customer, "x")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.Register(context.Background(), customer), ErrNotConnected)
}

func TestClient_ReconnectStartsEmpty(t *testing.T) {
	srv := newTestServer(t, carrier.NewLoopback(idgen.NewUUIDGenerator()))
	ctx := context.Background()
	c := connect(t, srv)

	_, err := srv.relay.HandleInbound(ctx, &relay.InboundMessage{From: customer, To: desk, Body: "Hi"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.Store().Messages()) == 1 }, time.Second, 5*time.Millisecond)

	done := c.Done()
	require.NoError(t, c.Close())
	<-done

	require.NoError(t, c.Connect(ctx))
	assert.Empty(t, c.Store().Messages())
}

func TestClient_HTTPSurface(t *testing.T) {
	srv := newTestServer(t, carrier.NewLoopback(idgen.NewUUIDGenerator()))
	ctx := context.Background()
	c := MustNewClient(srv.url)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	res, err := c.Submit(ctx, customer, "via http")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.ExternalId)

	info, err := c.Presence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Connections)
}

func TestClient_SubmitFailure(t *testing.T) {
	srv := newTestServer(t, failingCarrier{})
	c := MustNewClient(srv.url)

	res, err := c.Submit(context.Background(), customer, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCarrierRejected))
	assert.False(t, res.Success)
}

func TestClient_WsURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws", MustNewClient("http://localhost:8080/").wsURL())
	assert.Equal(t, "wss://desk.example/ws", MustNewClient("https://desk.example").wsURL())
}
