package router

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/smsdesk/internal/config"
	"github.com/mbeoliero/smsdesk/internal/gateway"
	"github.com/mbeoliero/smsdesk/internal/handler"
	"github.com/mbeoliero/smsdesk/internal/metrics"
	"github.com/mbeoliero/smsdesk/internal/middleware"
)

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer, m *metrics.Metrics) {
	h.Use(middleware.CORS())

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	apiGroup := h.Group("/api")
	{
		apiGroup.POST("/messages", handlers.Message.Submit)
	}

	// Carrier callbacks
	webhookGroup := h.Group("/webhooks/sms")
	{
		webhookGroup.POST("/inbound", handlers.Webhook.Inbound)
		webhookGroup.POST("/status", handlers.Webhook.Status)
	}

	h.GET("/presence", handlers.Presence.List)
	h.GET("/metrics", adaptor.HertzHandler(m.Handler()))

	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// Same-origin request or non-browser client
	if origin == "" {
		return true
	}

	if len(allowedOrigins) == 0 {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}

	return false
}

// Handlers holds all HTTP handlers
type Handlers struct {
	Message  *handler.MessageHandler
	Webhook  *handler.WebhookHandler
	Presence *handler.PresenceHandler
}
