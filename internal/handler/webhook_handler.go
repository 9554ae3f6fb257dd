package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/smsdesk/internal/carrier"
	"github.com/mbeoliero/smsdesk/internal/relay"
	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// CarrierEvents consumes carrier callbacks
type CarrierEvents interface {
	HandleInbound(ctx context.Context, in *relay.InboundMessage) (*protocol.Message, error)
	HandleStatus(ctx context.Context, update *relay.StatusUpdate) error
}

// WebhookHandler receives carrier callbacks. Malformed payloads are logged by the
// relay and still acknowledged, so the carrier does not retry them.
type WebhookHandler struct {
	events CarrierEvents
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(events CarrierEvents) *WebhookHandler {
	return &WebhookHandler{events: events}
}

// Inbound handles POST /webhooks/sms/inbound
func (h *WebhookHandler) Inbound(ctx context.Context, c *app.RequestContext) {
	in := &relay.InboundMessage{
		From:       c.PostForm(carrier.FieldFrom),
		To:         c.PostForm(carrier.FieldTo),
		Body:       c.PostForm(carrier.FieldBody),
		ExternalId: c.PostForm(carrier.FieldMessageSid),
	}

	// Errors are already logged and counted
	_, _ = h.events.HandleInbound(ctx, in)

	c.Data(consts.StatusOK, carrier.AckContentType, carrier.Ack)
}

// Status handles POST /webhooks/sms/status
func (h *WebhookHandler) Status(ctx context.Context, c *app.RequestContext) {
	update := &relay.StatusUpdate{
		ExternalId: c.PostForm(carrier.FieldMessageSid),
		Status:     c.PostForm(carrier.FieldMessageStatus),
	}
	if code := c.PostForm(carrier.FieldErrorCode); code != "" {
		log.CtxInfo(ctx, "carrier reported error: external_id=%s, status=%s, error_code=%s", update.ExternalId, update.Status, code)
	}

	_ = h.events.HandleStatus(ctx, update)

	c.Status(consts.StatusOK)
}
