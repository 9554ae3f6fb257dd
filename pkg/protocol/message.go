package protocol

// Direction tells which relay path produced a message
type Direction string

const (
	DirectionInbound  Direction = "inbound"  // Carrier callback
	DirectionOutbound Direction = "outbound" // Send acknowledgment
)

// Delivery statuses reported by the carrier, plus the local-only ones used by clients
const (
	StatusSending     = "sending" // local, optimistic
	StatusAccepted    = "accepted"
	StatusQueued      = "queued"
	StatusSent        = "sent"
	StatusReceived    = "received"
	StatusDelivered   = "delivered"
	StatusUndelivered = "undelivered"
	StatusFailed      = "failed"
	StatusRead        = "read"
)

var statusRank = map[string]int{
	StatusSending:     0,
	StatusAccepted:    1,
	StatusQueued:      2,
	StatusSent:        3,
	StatusReceived:    4,
	StatusDelivered:   5,
	StatusUndelivered: 5,
	StatusFailed:      5,
	StatusRead:        6,
}

// StatusRank returns the position of status in the delivery lifecycle.
// ok is false for statuses the lifecycle does not know about.
func StatusRank(status string) (rank int, ok bool) {
	rank, ok = statusRank[status]
	return rank, ok
}

// Message is one SMS as seen on the real-time channel.
// Timestamp is unix milliseconds.
type Message struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	Timestamp  int64     `json:"timestamp"`
	Direction  Direction `json:"direction"`
	ExternalId string    `json:"externalId,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// Identity returns the other party of the conversation
func (m *Message) Identity() string {
	if m.Direction == DirectionInbound {
		return m.From
	}
	return m.To
}

// Involves reports whether identity is either end of the message
func (m *Message) Involves(identity string) bool {
	return m.From == identity || m.To == identity
}
