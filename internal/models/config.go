package models

// Config is the root configuration for the chat client core.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Chat    ChatConfig    `json:"chat"`
	Retry   RetryConfig   `json:"retry"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig locates the backend. SocketPath is appended to the websocket
// form of APIBaseURL when opening the live connection.
type ServerConfig struct {
	APIBaseURL     string `json:"api_base_url"`
	SocketPath     string `json:"socket_path"`
	HTTPTimeoutSec int    `json:"http_timeout_sec"`
}

// ChatConfig tunes per-conversation behavior.
type ChatConfig struct {
	AckTimeoutSec   int `json:"ack_timeout_sec"`
	HistoryPageSize int `json:"history_page_size"`
}

// RetryConfig controls the transport reconnect schedule.
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// ConfigError reports an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
