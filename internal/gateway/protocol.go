package gateway

import (
	"github.com/mbeoliero/smsdesk/internal/relay"
	"github.com/mbeoliero/smsdesk/pkg/errcode"
	"github.com/mbeoliero/smsdesk/pkg/protocol"
	"github.com/mbeoliero/smsdesk/pkg/response"
)

// pushTask is one encoded event waiting for the dispatcher
type pushTask struct {
	Event  string
	ConnId string // targetAll for a broadcast
	Frame  []byte
}

// encodeEvent builds an envelope frame
func encodeEvent(event, reqId string, data interface{}) ([]byte, error) {
	return protocol.NewEnvelope(event, reqId, data)
}

// encodeError builds an error event frame for err
func encodeError(reqId string, err error) ([]byte, error) {
	return protocol.NewEnvelope(protocol.EventError, reqId, response.ErrorInfo(err))
}

// sendResult converts a relay outcome to the send_result payload
func sendResult(res *relay.SendResult, err error) *protocol.SendResult {
	if err != nil {
		return &protocol.SendResult{Success: false, Error: response.ErrorInfo(errcode.From(err))}
	}
	return &protocol.SendResult{
		Success:    true,
		ExternalId: res.ExternalId,
		To:         res.Message.To,
		Status:     res.Status,
		Timestamp:  res.Message.Timestamp,
	}
}
