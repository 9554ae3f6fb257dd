package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/smsdesk/internal/config"
	"github.com/mbeoliero/smsdesk/internal/metrics"
	"github.com/mbeoliero/smsdesk/internal/presence"
	"github.com/mbeoliero/smsdesk/internal/relay"
)

// Sender submits outbound messages on behalf of a connection
type Sender interface {
	Send(ctx context.Context, req *relay.SendRequest) (*relay.SendResult, error)
}

// WsServer is the WebSocket server. It owns connection lifecycle and implements
// relay.Broadcaster.
type WsServer struct {
	upgrader       *websocket.Upgrader
	connOpts       connOptions
	presence       *presence.Registry
	sender         Sender
	metrics        *metrics.Metrics
	mu             sync.RWMutex
	clients        map[string]*Client // connId -> client
	registerChan   chan *Client
	unregisterChan chan *Client
	pushChan       chan *pushTask
	onlineConnNum  atomic.Int64
	maxConnNum     int64
	mirrorRefresh  time.Duration
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, registry *presence.Registry, sender Sender, m *metrics.Metrics) *WsServer {
	pushSize := cfg.WebSocket.PushChannelSize
	if pushSize <= 0 {
		pushSize = 10000
	}

	var mirrorRefresh time.Duration
	if cfg.Redis.Enabled && cfg.Redis.PresenceTTL > 0 {
		mirrorRefresh = cfg.Redis.PresenceTTL / 2
	}

	return &WsServer{
		upgrader:       NewUpgrader(nil),
		connOpts:       newConnOptions(cfg.WebSocket),
		presence:       registry,
		sender:         sender,
		metrics:        m,
		clients:        make(map[string]*Client),
		registerChan:   make(chan *Client, registerChannelSize),
		unregisterChan: make(chan *Client, unregisterChannelSize),
		pushChan:       make(chan *pushTask, pushSize),
		maxConnNum:     cfg.WebSocket.MaxConnNum,
		mirrorRefresh:  mirrorRefresh,
	}
}

// Run starts the event loop and the push dispatcher
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)
	// One dispatcher keeps every connection's events in emission order
	go s.pushLoop(ctx)
	if s.mirrorRefresh > 0 {
		go s.refreshLoop(ctx)
	}
	log.Info("websocket server started: max_conns=%d", s.maxConnNum)
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		}
	}
}

// pushLoop drains the push channel in FIFO order
func (s *WsServer) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.pushChan:
			s.processPushTask(ctx, task)
		}
	}
}

// refreshLoop keeps the Redis presence mirror from expiring
func (s *WsServer) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.mirrorRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.presence.RefreshMirror(ctx)
		}
	}
}

// processPushTask writes one frame to its target connections
func (s *WsServer) processPushTask(ctx context.Context, task *pushTask) {
	if task.ConnId != targetAll {
		s.mu.RLock()
		client, ok := s.clients[task.ConnId]
		s.mu.RUnlock()
		if !ok {
			log.CtxDebug(ctx, "push target gone: event=%s, conn_id=%s", task.Event, task.ConnId)
			return
		}
		s.pushToClient(ctx, client, task)
		return
	}

	for _, client := range s.snapshotClients() {
		s.pushToClient(ctx, client, task)
	}
}

func (s *WsServer) pushToClient(ctx context.Context, client *Client, task *pushTask) {
	if err := client.writeFrame(task.Frame); err != nil {
		log.CtxDebug(ctx, "push to client failed: event=%s, conn_id=%s, error=%v", task.Event, client.ConnId, err)
	}
}

func (s *WsServer) snapshotClients() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	return clients
}

// registerClient adds a connection to the broadcast set
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	if client.IsClosed() {
		// Closed before the event loop saw it; its unregister is already queued
		return
	}

	s.mu.Lock()
	s.clients[client.ConnId] = client
	s.mu.Unlock()

	s.onlineConnNum.Add(1)
	s.metrics.Connections.Inc()

	log.CtxInfo(ctx, "client registered: conn_id=%s, online_conns=%d", client.ConnId, s.onlineConnNum.Load())
}

// unregisterClient removes a connection and any identity it registered
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	s.mu.Lock()
	_, ok := s.clients[client.ConnId]
	delete(s.clients, client.ConnId)
	s.mu.Unlock()

	identity, registered := s.presence.UnregisterByConnection(ctx, client.ConnId)
	if !ok {
		return
	}

	s.onlineConnNum.Add(-1)
	s.metrics.Connections.Dec()

	log.CtxInfo(ctx, "client unregistered: conn_id=%s, identity=%s, had_identity=%v, online_conns=%d",
		client.ConnId, identity, registered, s.onlineConnNum.Load())
}

// UnregisterClient queues client for unregistration. When the queue is full the
// cleanup runs on the caller so the connection never lingers in the broadcast set.
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full, unregistering inline: conn_id=%s", client.ConnId)
		s.unregisterClient(context.Background(), client)
	}
}

// Broadcast queues event for every connected client
func (s *WsServer) Broadcast(ctx context.Context, event string, data interface{}) {
	s.push(ctx, event, targetAll, data)
}

// SendTo queues event for one connection. It returns false if connId is not connected.
func (s *WsServer) SendTo(ctx context.Context, connId, event string, data interface{}) bool {
	s.mu.RLock()
	_, ok := s.clients[connId]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	s.push(ctx, event, connId, data)
	return true
}

func (s *WsServer) push(ctx context.Context, event, connId string, data interface{}) {
	frame, err := encodeEvent(event, "", data)
	if err != nil {
		log.CtxError(ctx, "encode event failed: event=%s, error=%v", event, err)
		return
	}

	select {
	case s.pushChan <- &pushTask{Event: event, ConnId: connId, Frame: frame}:
	default:
		s.metrics.DroppedPushes.Inc()
		log.CtxWarn(ctx, "push channel full, event dropped: event=%s, conn_id=%s", event, connId)
	}
}

// CloseAll closes every live connection
func (s *WsServer) CloseAll() {
	for _, client := range s.snapshotClients() {
		client.Close()
	}
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

func (s *WsServer) atCapacity() bool {
	return s.maxConnNum > 0 && s.onlineConnNum.Load() >= s.maxConnNum
}
