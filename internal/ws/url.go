package ws

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultServer is used when neither a server origin nor a WebSocket URL is
// configured.
const DefaultServer = "http://localhost"

// ResolveURL returns override when set, otherwise the /ws endpoint of the
// server origin with http mapped to ws and https to wss.
func ResolveURL(server, override string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		u, err := url.Parse(override)
		if err != nil {
			return "", fmt.Errorf("invalid websocket url %q: %w", override, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return "", fmt.Errorf("invalid websocket url %q: scheme must be ws or wss", override)
		}
		return u.String(), nil
	}

	if server = strings.TrimSpace(server); server == "" {
		server = DefaultServer
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server %q: %w", server, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server %q: unsupported scheme %s", server, u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
