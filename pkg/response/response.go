package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/smsdesk/pkg/errcode"
	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// Response represents a standard API response
type Response struct {
	Success bool                `json:"success"`
	Data    interface{}         `json:"data,omitempty"`
	Error   *protocol.ErrorInfo `json:"error,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// SendResult sends the outcome of a message submission in the flat
// {success, externalId} / {success:false, error} shape
func SendResult(ctx context.Context, c *app.RequestContext, result *protocol.SendResult) {
	c.JSON(http.StatusOK, result)
}

// ErrorInfo converts err to the wire error pair
func ErrorInfo(err error) *protocol.ErrorInfo {
	e := errcode.From(err)
	if e == nil {
		return nil
	}
	return &protocol.ErrorInfo{Code: e.Code, Message: e.Msg}
}
