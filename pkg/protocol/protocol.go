package protocol

import "encoding/json"

// Client -> server events
const (
	EventRegister    = "register"     // Register interest in an identity
	EventSendMessage = "send_message" // Submit an outbound SMS
)

// Server -> client events
const (
	EventRegistered   = "registered"    // Registration acknowledged
	EventNewMessage   = "new_message"   // Inbound or confirmed outbound message
	EventStatusUpdate = "status_update" // Delivery status change for an externalId
	EventSendResult   = "send_result"   // Reply to send_message, sender only
	EventError        = "error"         // Protocol error, sender only
)

// Envelope is the frame exchanged on the real-time channel
type Envelope struct {
	Event string          `json:"event"`            // Event name
	ReqId string          `json:"req_id,omitempty"` // Client correlation Id (echoed back)
	Data  json.RawMessage `json:"data,omitempty"`   // Event payload
}

// RegisterData is the payload of register and registered
type RegisterData struct {
	Identity string `json:"identity"`
}

// SendMessageData is the payload of send_message
type SendMessageData struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp,omitempty"` // Optimistic local timestamp, echoed on the broadcast
}

// StatusUpdateData is the payload of status_update
type StatusUpdateData struct {
	ExternalId string `json:"externalId"`
	Status     string `json:"status"`
}

// ErrorInfo is an opaque error code/message pair
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendResult is the outcome of a send, returned to the requester only
type SendResult struct {
	Success    bool       `json:"success"`
	ExternalId string     `json:"externalId,omitempty"`
	To         string     `json:"to,omitempty"` // Recipient as submitted to the carrier
	Status     string     `json:"status,omitempty"`
	Timestamp  int64      `json:"timestamp,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// NewEnvelope encodes data into an envelope frame
func NewEnvelope(event, reqId string, data interface{}) ([]byte, error) {
	env := Envelope{Event: event, ReqId: reqId}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

