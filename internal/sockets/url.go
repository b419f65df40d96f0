package sockets

import (
	"fmt"
	"net/url"
	"strings"
)

const socketIOQuery = "EIO=3&transport=websocket"

// IsLocalHost reports whether host names this machine. Local relays usually
// run with self-signed certificates, so TLS is turned off for them.
func IsLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}

// SocketIOURL turns the relay address given by the operator, for example
// https://192.168.1.100:443/rtc/socket.io, into a websocket transport URL.
func SocketIOURL(server string, disableSSL bool) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", server)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if disableSSL || IsLocalHost(u.Hostname()) {
		u.Scheme = "ws"
	}

	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, "/socket.io") {
		path += "/socket.io"
	}
	u.Path = path + "/"
	u.RawQuery = socketIOQuery
	u.Fragment = ""

	return u.String(), nil
}
