package realtime

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ResolveEndpoint determines the WebSocket URL for the realtime feed.
//
// When override is set it is used directly, except that a plain ws:// scheme
// is upgraded to wss:// when the site origin is served over TLS. Otherwise
// the endpoint is derived from the site origin: http(s) maps to ws(s) and a
// dashboard.-prefixed hostname is rewritten to the api. host. Either way the
// path ends with /ws exactly once.
func ResolveEndpoint(override, site string) (string, error) {
	if override != "" {
		u, err := url.Parse(override)
		if err != nil {
			return "", fmt.Errorf("parse override url: %w", err)
		}
		if u.Scheme == "ws" && siteIsTLS(site) {
			u.Scheme = "wss"
		}
		u.Path = ensureWSPath(u.Path)
		return u.String(), nil
	}

	if site == "" {
		return "", ErrNoEndpoint
	}

	u, err := url.Parse(site)
	if err != nil {
		return "", fmt.Errorf("parse site url: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	host := u.Hostname()
	if strings.HasPrefix(host, "dashboard.") {
		host = "api." + strings.TrimPrefix(host, "dashboard.")
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}

	u.Path = ensureWSPath(u.Path)
	return u.String(), nil
}

func siteIsTLS(site string) bool {
	u, err := url.Parse(site)
	if err != nil {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "wss"
}

func ensureWSPath(path string) string {
	if strings.HasSuffix(path, "/ws") {
		return path
	}
	return strings.TrimSuffix(path, "/") + "/ws"
}
