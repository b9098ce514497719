package shared

import "time"

// HTTP Client Configuration
const (
	DefaultDispatchTimeout   = 10 * time.Minute
	DefaultFirstTokenTimeout = 2 * time.Minute
	DefaultShutdownTimeout   = 10 * time.Minute
)

// Gateway Configuration
const (
	ChannelTag            = "peerbridge"
	ChatCompletionsPath   = "/v1/chat/completions"
	ChatTypeDirect        = "direct"
	BuyerPeerIDHeader     = "x-peerbridge-buyer-peer-id"
	RequestIDHeader       = "X-Request-Id"
	DefaultMaxConcurrency = 4
	DefaultAccountID      = "default"
	DefaultRequestLogPath = "requests.jsonl"
	MessagePreviewLength  = 100
	APIKeyLength          = 32
)

// Session Configuration
const (
	SessionKeyPrefix     = "peerbridge:sessions"
	SessionRecordTTL     = 24 * time.Hour
	SessionMaxRecords    = 200
	SessionRecordTimeout = 5 * time.Second
)

// Bucket Configuration
const (
	BucketFlushInterval = 1 * time.Minute
	BucketRetryDelay    = 30 * time.Second
	MaxFlushRetries     = 3

	// Matches buyer_daily_stats.buyer_peer_id
	MaxStoredBuyerIDLength = 191
)
