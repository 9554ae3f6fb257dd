package relay

import (
	"errors"
	"strings"

	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// The relay accepts exactly these three inputs. Each is validated at the boundary
// before anything is broadcast.

// InboundMessage is a message the carrier received for us
type InboundMessage struct {
	From       string
	To         string
	Body       string
	ExternalId string
}

// Validate checks the fields the relay depends on
func (m *InboundMessage) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return errors.New("inbound message has no sender")
	}
	if strings.TrimSpace(m.To) == "" {
		return errors.New("inbound message has no recipient")
	}
	return nil
}

// StatusUpdate is a delivery status change reported by the carrier
type StatusUpdate struct {
	ExternalId string
	Status     string
}

// Validate checks the fields the relay depends on
func (u *StatusUpdate) Validate() error {
	if strings.TrimSpace(u.ExternalId) == "" {
		return errors.New("status update has no external id")
	}
	if strings.TrimSpace(u.Status) == "" {
		return errors.New("status update has no status")
	}
	return nil
}

// SendRequest asks the relay to submit an outbound message.
// Timestamp is the sender's optimistic timestamp (unix ms); zero means now.
type SendRequest struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Validate checks the fields the relay depends on
func (r *SendRequest) Validate() error {
	if strings.TrimSpace(r.To) == "" {
		return errors.New("send request has no recipient")
	}
	if r.Body == "" {
		return errors.New("send request has no body")
	}
	return nil
}

// SendResult is a successful send
type SendResult struct {
	ExternalId string
	Status     string
	Message    protocol.Message
}
