package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/smsdesk/internal/relay"
	"github.com/mbeoliero/smsdesk/pkg/errcode"
	"github.com/mbeoliero/smsdesk/pkg/protocol"
	"github.com/mbeoliero/smsdesk/pkg/response"
)

// Sender submits outbound messages
type Sender interface {
	Send(ctx context.Context, req *relay.SendRequest) (*relay.SendResult, error)
}

// MessageHandler handles the synchronous send surface
type MessageHandler struct {
	sender Sender
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(sender Sender) *MessageHandler {
	return &MessageHandler{sender: sender}
}

// Submit handles POST /api/messages
func (h *MessageHandler) Submit(ctx context.Context, c *app.RequestContext) {
	var req relay.SendRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.SendResult(ctx, c, &protocol.SendResult{
			Error: response.ErrorInfo(errcode.ErrInvalidParam.Wrap(err)),
		})
		return
	}

	res, err := h.sender.Send(ctx, &req)
	if err != nil {
		response.SendResult(ctx, c, &protocol.SendResult{Error: response.ErrorInfo(err)})
		return
	}

	response.SendResult(ctx, c, &protocol.SendResult{
		Success:    true,
		ExternalId: res.ExternalId,
		To:         res.Message.To,
		Status:     res.Status,
		Timestamp:  res.Message.Timestamp,
	})
}
