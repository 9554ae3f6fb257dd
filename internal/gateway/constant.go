package gateway

// Channel sizes for the server event loop
const (
	registerChannelSize   = 1000
	unregisterChannelSize = 1000
)

// Fallbacks used when a zero value reaches the connection layer
const (
	defaultWriteChannelSize = 256
	defaultMaxMessageSize   = 51200
)

// Push targets
const (
	targetAll = "" // Every connected client
)
