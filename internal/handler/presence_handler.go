package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/smsdesk/internal/presence"
	"github.com/mbeoliero/smsdesk/pkg/response"
)

// PresenceSource lists registered identities
type PresenceSource interface {
	Snapshot() []presence.Entry
}

// ConnCounter reports live websocket connections
type ConnCounter interface {
	GetOnlineConnCount() int64
}

// PresenceInfo is the GET /presence payload
type PresenceInfo struct {
	Connections int64            `json:"connections"`
	Identities  []presence.Entry `json:"identities"`
}

// PresenceHandler exposes the presence registry for operators
type PresenceHandler struct {
	registry PresenceSource
	conns    ConnCounter
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(registry PresenceSource, conns ConnCounter) *PresenceHandler {
	return &PresenceHandler{registry: registry, conns: conns}
}

// List handles GET /presence
func (h *PresenceHandler) List(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, &PresenceInfo{
		Connections: h.conns.GetOnlineConnCount(),
		Identities:  h.registry.Snapshot(),
	})
}
