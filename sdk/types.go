package sdk

import (
	"encoding/json"
	"time"

	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// Response represents the standard API response
type Response struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Error   *protocol.ErrorInfo `json:"error,omitempty"`
}

// HealthInfo is the health probe answer
type HealthInfo struct {
	Status string `json:"status"`
}

// PresenceEntry is one registered identity
type PresenceEntry struct {
	Identity string    `json:"identity"`
	ConnId   string    `json:"conn_id"`
	Since    time.Time `json:"since"`
}

// PresenceInfo lists registered identities and live connections
type PresenceInfo struct {
	Connections int64           `json:"connections"`
	Identities  []PresenceEntry `json:"identities"`
}

// SubmitRequest is the body of POST /api/messages
type SubmitRequest struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
