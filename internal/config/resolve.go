package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/sockets"
)

var ErrMissingServer = errors.New("signalling server url is required")

// Resolve fills derived values and validates cfg. It is applied after files
// and flags, so that a localhost server disables ssl whatever the source.
func Resolve(cfg *AppConfig) error {
	if cfg.Signalling.Server == "" {
		return ErrMissingServer
	}

	u, err := url.Parse(cfg.Signalling.Server)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", cfg.Signalling.Server, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server url %q: missing host", cfg.Signalling.Server)
	}
	if !cfg.Signalling.DisableSSL && sockets.IsLocalHost(u.Hostname()) {
		slog.Debug("local server, ssl disabled", "server", cfg.Signalling.Server)
		cfg.Signalling.DisableSSL = true
	}

	if cfg.Signalling.Identity == "" {
		cfg.Signalling.Identity = "viewer-" + uuid.NewString()
	}

	if cfg.WebRTC.PortMin > cfg.WebRTC.PortMax && cfg.WebRTC.PortMax != 0 {
		return fmt.Errorf("invalid port range %d-%d", cfg.WebRTC.PortMin, cfg.WebRTC.PortMax)
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	switch strings.ToLower(s) {
	case "", "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
