package config

import (
	"encoding/json"
	"net/url"
	"os"
	"strconv"

	"sparkchat/internal/constants"
	"sparkchat/internal/models"
)

var (
	ErrMissingAPIBaseURL = models.ConfigError{Message: "missing API base URL"}
	ErrInvalidAPIBaseURL = models.ConfigError{Message: "API base URL must be absolute http(s)"}
)

// Default returns a configuration with every tunable at its default, ready
// for use once an API base URL is set.
func Default() *models.Config {
	cfg := &models.Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads a JSON config file, fills defaults, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the parts of the config the subsystem cannot run without.
func Validate(c *models.Config) error {
	if c.Server.APIBaseURL == "" {
		return ErrMissingAPIBaseURL
	}
	u, err := url.Parse(c.Server.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidAPIBaseURL
	}
	if c.Chat.AckTimeoutSec <= 0 {
		return models.ConfigError{Message: "ack timeout must be positive"}
	}
	if c.Chat.HistoryPageSize <= 0 {
		return models.ConfigError{Message: "history page size must be positive"}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.SocketPath == "" {
		c.Server.SocketPath = constants.DefaultSocketPath
	}
	if c.Server.HTTPTimeoutSec == 0 {
		c.Server.HTTPTimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Chat.AckTimeoutSec == 0 {
		c.Chat.AckTimeoutSec = constants.DefaultAckTimeoutSec
	}
	if c.Chat.HistoryPageSize == 0 {
		c.Chat.HistoryPageSize = constants.DefaultHistoryPageSize
	}
	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = constants.DefaultReconnectInitialMs
	}
	if c.Retry.MaxBackoffMs == 0 {
		c.Retry.MaxBackoffMs = constants.DefaultReconnectMaxBackoffS * 1000
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = constants.DefaultReconnectAttempts
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("SPARKCHAT_API_BASE_URL"); v != "" {
		c.Server.APIBaseURL = v
	}
	if v := os.Getenv("SPARKCHAT_SOCKET_PATH"); v != "" {
		c.Server.SocketPath = v
	}
	if v := os.Getenv("SPARKCHAT_ACK_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Chat.AckTimeoutSec = sec
		}
	}
	if v := os.Getenv("SPARKCHAT_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
}
