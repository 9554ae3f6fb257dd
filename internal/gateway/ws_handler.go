package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
)

// NewUpgrader returns the gorilla upgrader used by HandleConnection.
// A nil checkOrigin accepts every origin.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

// HandleConnection serves a WebSocket connection over net/http
func (s *WsServer) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.atCapacity() {
		log.CtxWarn(ctx, "rejecting websocket: online_conns=%d, max_conns=%d", s.onlineConnNum.Load(), s.maxConnNum)
		http.Error(w, ErrConnLimit.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	wsConn := NewWebSocketClientConn(conn, s.connOpts)
	client := NewClient(wsConn, uuid.NewString(), s)

	s.registerChan <- client

	client.Start()
}

// ServeHTTP makes WsServer an http.Handler
func (s *WsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.HandleConnection(w, r)
}
