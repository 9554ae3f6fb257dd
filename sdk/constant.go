package sdk

// API paths
const (
	PathHealth   = "/health"
	PathMessages = "/api/messages"
	PathPresence = "/presence"
	PathWs       = "/ws"
)

// Delivery statuses re-exported for callers that do not import pkg/protocol
const (
	StatusSending     = "sending"
	StatusQueued      = "queued"
	StatusSent        = "sent"
	StatusDelivered   = "delivered"
	StatusUndelivered = "undelivered"
	StatusFailed      = "failed"
)
