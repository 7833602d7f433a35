package transport

import (
	"net/url"
	"strings"

	"sparkchat/internal/errors"
)

// BuildWebSocketURL derives the websocket address for path from an HTTP(S)
// base address: http becomes ws, https becomes wss, host and port are
// preserved. Already-websocket schemes pass through unchanged.
func BuildWebSocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.NewConfigError("api_base_url", "base URL is not parseable").WithContext("base", base)
	}

	var scheme string
	switch u.Scheme {
	case "http", "ws":
		scheme = "ws"
	case "https", "wss":
		scheme = "wss"
	default:
		return "", errors.NewConfigError("api_base_url", "base URL must be http(s) or ws(s)").WithContext("base", base)
	}
	if u.Host == "" {
		return "", errors.NewConfigError("api_base_url", "base URL has no host").WithContext("base", base)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + u.Host + path, nil
}
