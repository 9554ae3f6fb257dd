package constant

// Delivery policies for new_message events
const (
	DeliveryBroadcast = "broadcast" // Every connected client
	DeliveryTargeted  = "targeted"  // Connection registered for the identity, broadcast when none
)

// Carrier drivers
const (
	CarrierTwilio   = "twilio"
	CarrierLoopback = "loopback"
)

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyPresence = "presence:%s" // presence:{identity}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "smsdesk:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyPresence() string { return redisKeyPrefix + redisKeyPresence }
