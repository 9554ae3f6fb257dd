package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/smsdesk/internal/carrier"
	"github.com/mbeoliero/smsdesk/internal/config"
	"github.com/mbeoliero/smsdesk/internal/metrics"
	"github.com/mbeoliero/smsdesk/internal/presence"
	"github.com/mbeoliero/smsdesk/internal/relay"
	"github.com/mbeoliero/smsdesk/pkg/errcode"
	"github.com/mbeoliero/smsdesk/pkg/idgen"
	"github.com/mbeoliero/smsdesk/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	err error
}

func (s *stubSender) Send(ctx context.Context, req *relay.SendRequest) (*relay.SendResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &relay.SendResult{
		ExternalId: "SM123",
		Status:     protocol.StatusQueued,
		Message:    protocol.Message{To: req.To, Body: req.Body, Timestamp: req.Timestamp},
	}, nil
}

type testEnv struct {
	server   *WsServer
	registry *presence.Registry
	http     *httptest.Server
	url      string
}

func newTestEnv(t *testing.T, sender Sender, tweak func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if tweak != nil {
		tweak(cfg)
	}

	registry := presence.NewRegistry(nil, time.Minute)
	s := NewWsServer(cfg, registry, sender, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	s.Run(ctx)

	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		s.CloseAll()
		ts.Close()
		cancel()
	})

	return &testEnv{
		server:   s,
		registry: registry,
		http:     ts,
		url:      "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	want := e.server.GetOnlineConnCount() + 1

	conn, _, err := websocket.DefaultDialer.Dial(e.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return e.server.GetOnlineConnCount() == want
	}, time.Second, 5*time.Millisecond)
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event, reqId string, data interface{}) {
	t.Helper()
	frame, err := protocol.NewEnvelope(event, reqId, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

func TestWsServer_RegisterAndDisconnect(t *testing.T) {
	env := newTestEnv(t, &stubSender{}, nil)
	conn := env.dial(t)

	writeEvent(t, conn, protocol.EventRegister, "r1", &protocol.RegisterData{Identity: "+15551230000"})

	reply := readEvent(t, conn)
	assert.Equal(t, protocol.EventRegistered, reply.Event)
	assert.Equal(t, "r1", reply.ReqId)
	var data protocol.RegisterData
	require.NoError(t, json.Unmarshal(reply.Data, &data))
	assert.Equal(t, "+15551230000", data.Identity)

	_, ok := env.registry.Lookup("+15551230000")
	assert.True(t, ok)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		_, ok := env.registry.Lookup("+15551230000")
		return !ok && env.server.GetOnlineConnCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestWsServer_ReconnectReplacesIdentity(t *testing.T) {
	env := newTestEnv(t, &stubSender{}, nil)
	first := env.dial(t)
	second := env.dial(t)

	writeEvent(t, first, protocol.EventRegister, "", &protocol.RegisterData{Identity: "+15551230000"})
	readEvent(t, first)
	firstConn, _ := env.registry.Lookup("+15551230000")

	writeEvent(t, second, protocol.EventRegister, "", &protocol.RegisterData{Identity: "+15551230000"})
	readEvent(t, second)
	secondConn, _ := env.registry.Lookup("+15551230000")
	assert.NotEqual(t, firstConn, secondConn)

	// The replaced connection leaving does not remove the newer registration
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return env.server.GetOnlineConnCount() == 1
	}, time.Second, 5*time.Millisecond)

	connId, ok := env.registry.Lookup("+15551230000")
	assert.True(t, ok)
	assert.Equal(t, secondConn, connId)
}

func TestWsServer_BroadcastOrder(t *testing.T) {
	env := newTestEnv(t, &stubSender{}, nil)
	a := env.dial(t)
	b := env.dial(t)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env.server.Broadcast(ctx, protocol.EventStatusUpdate, &protocol.StatusUpdateData{
			ExternalId: "SM" + string(rune('0'+i)),
			Status:     protocol.StatusSent,
		})
	}

	for _, conn := range []*websocket.Conn{a, b} {
		for i := 0; i < 5; i++ {
			ev := readEvent(t, conn)
			require.Equal(t, protocol.EventStatusUpdate, ev.Event)
			var data protocol.StatusUpdateData
			require.NoError(t, json.Unmarshal(ev.Data, &data))
			assert.Equal(t, "SM"+string(rune('0'+i)), data.ExternalId)
		}
	}
}

func TestWsServer_SendTo(t *testing.T) {
	env := newTestEnv(t, &stubSender{}, nil)
	a := env.dial(t)
	env.dial(t)

	writeEvent(t, a, protocol.EventRegister, "", &protocol.RegisterData{Identity: "+15551230000"})
	readEvent(t, a)
	connId, ok := env.registry.Lookup("+15551230000")
	require.True(t, ok)

	ctx := context.Background()
	assert.True(t, env.server.SendTo(ctx, connId, protocol.EventNewMessage, &protocol.Message{Body: "only a"}))
	assert.False(t, env.server.SendTo(ctx, "missing", protocol.EventNewMessage, &protocol.Message{}))

	ev := readEvent(t, a)
	assert.Equal(t, protocol.EventNewMessage, ev.Event)
}

func TestWsServer_UnregisterWhenQueueFull(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	registry := presence.NewRegistry(nil, time.Minute)
	s := NewWsServer(cfg, registry, &stubSender{}, metrics.New())
	ctx := context.Background()

	// The event loop is not running, so nothing drains the queue
	client := &Client{ConnId: "conn-1", server: s}
	s.registerClient(ctx, client)
	registry.Register(ctx, "+15551230000", client.ConnId)
	for i := 0; i < cap(s.unregisterChan); i++ {
		s.unregisterChan <- &Client{ConnId: fmt.Sprintf("queued-%d", i), server: s}
	}

	s.UnregisterClient(client)

	assert.Equal(t, int64(0), s.GetOnlineConnCount())
	assert.Empty(t, s.snapshotClients())
	_, ok := registry.Lookup("+15551230000")
	assert.False(t, ok)
}

func TestWsServer_SendMessage(t *testing.T) {
	env := newTestEnv(t, &stubSender{}, nil)
	conn := env.dial(t)

	writeEvent(t, conn, protocol.EventSendMessage, "s1", &protocol.SendMessageData{
		To: "+15551230000", Body: "hello", Timestamp: 42,
	})

	ev := readEvent(t, conn)
	assert.Equal(t, protocol.EventSendResult, ev.Event)
	assert.Equal(t, "s1", ev.ReqId)

	var res protocol.SendResult
	require.NoError(t, json.Unmarshal(ev.Data, &res))
	assert.True(t, res.Success)
	assert.Equal(t, "SM123", res.ExternalId)
	assert.Equal(t, "+15551230000", res.To)
	assert.Equal(t, int64(42), res.Timestamp)
	assert.Nil(t, res.Error)
}

func TestWsServer_SendMessageFailure(t *testing.T) {
	env := newTestEnv(t, &stubSender{err: errcode.ErrCarrierRejected.Wrap(assert.AnError)}, nil)
	conn := env.dial(t)

	writeEvent(t, conn, protocol.EventSendMessage, "s2", &protocol.SendMessageData{To: "+1", Body: "x"})

	ev := readEvent(t, conn)
	assert.Equal(t, protocol.EventSendResult, ev.Event)
	var res protocol.SendResult
	require.NoError(t, json.Unmarshal(ev.Data, &res))
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, errcode.ErrCarrierRejected.Code, res.Error.Code)
}

func TestWsServer_ProtocolErrorsKeepConnection(t *testing.T) {
	env := newTestEnv(t, &stubSender{}, nil)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := readEvent(t, conn)
	assert.Equal(t, protocol.EventError, ev.Event)

	writeEvent(t, conn, "subscribe", "u1", nil)
	ev = readEvent(t, conn)
	assert.Equal(t, protocol.EventError, ev.Event)
	assert.Equal(t, "u1", ev.ReqId)
	var info protocol.ErrorInfo
	require.NoError(t, json.Unmarshal(ev.Data, &info))
	assert.Equal(t, errcode.ErrUnknownEvent.Code, info.Code)

	writeEvent(t, conn, protocol.EventRegister, "r2", &protocol.RegisterData{Identity: " "})
	ev = readEvent(t, conn)
	assert.Equal(t, protocol.EventError, ev.Event)

	writeEvent(t, conn, protocol.EventRegister, "r3", &protocol.RegisterData{Identity: "+15551230000"})
	ev = readEvent(t, conn)
	assert.Equal(t, protocol.EventRegistered, ev.Event)
	assert.Equal(t, int64(1), env.server.GetOnlineConnCount())
}

func TestWsServer_ConnectionLimit(t *testing.T) {
	env := newTestEnv(t, &stubSender{}, func(cfg *config.Config) {
		cfg.WebSocket.MaxConnNum = 1
	})
	env.dial(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWsServer_InboundReachesEveryClient(t *testing.T) {
	ids := idgen.NewUUIDGenerator()
	m := metrics.New()
	registry := presence.NewRegistry(nil, time.Minute)
	r := relay.New(carrier.NewLoopback(ids), registry, m, relay.Options{From: "+18005550100"})

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	s := NewWsServer(cfg, registry, r, m)
	r.SetBroadcaster(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Run(ctx)
	ts := httptest.NewServer(s)
	defer ts.Close()
	env := &testEnv{server: s, registry: registry, http: ts, url: "ws" + strings.TrimPrefix(ts.URL, "http")}

	a := env.dial(t)
	b := env.dial(t)

	_, err := r.HandleInbound(ctx, &relay.InboundMessage{From: "+15551230000", To: "+1800", Body: "Hi", ExternalId: "SID9"})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		require.Equal(t, protocol.EventNewMessage, ev.Event)
		var msg protocol.Message
		require.NoError(t, json.Unmarshal(ev.Data, &msg))
		assert.Equal(t, protocol.DirectionInbound, msg.Direction)
		assert.Equal(t, "+15551230000", msg.From)
		assert.Equal(t, "SID9", msg.ExternalId)
	}

	// send_message from a: a gets send_result, both get the confirmed new_message
	writeEvent(t, a, protocol.EventSendMessage, "s1", &protocol.SendMessageData{To: "+15551230000", Body: "Hello back", Timestamp: 7})

	var gotResult, gotMessage bool
	for i := 0; i < 2; i++ {
		ev := readEvent(t, a)
		switch ev.Event {
		case protocol.EventSendResult:
			gotResult = true
		case protocol.EventNewMessage:
			gotMessage = true
			var msg protocol.Message
			require.NoError(t, json.Unmarshal(ev.Data, &msg))
			assert.Equal(t, protocol.DirectionOutbound, msg.Direction)
			assert.Equal(t, int64(7), msg.Timestamp)
		}
	}
	assert.True(t, gotResult)
	assert.True(t, gotMessage)

	ev := readEvent(t, b)
	assert.Equal(t, protocol.EventNewMessage, ev.Event)
}
