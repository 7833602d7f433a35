package constants

// Default chat configuration values
const (
	DefaultAckTimeoutSec   = 10
	DefaultHistoryPageSize = 50
	DefaultSocketPath      = "/ws/chat"
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec  = 30
	DefaultWriteTimeoutSec = 5
)

// Default reconnect backoff values
const (
	DefaultReconnectInitialMs   = 500
	DefaultReconnectMaxBackoffS = 30
	DefaultReconnectAttempts    = 5
)
