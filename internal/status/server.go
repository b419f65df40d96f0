package status

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/signalling"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const StatePushInterval = 250 * time.Millisecond

type SnapshotSource interface {
	Snapshot() signalling.Snapshot
}

// Server is the optional local status surface:
//   - GET /api/state  current coordinator snapshot
//   - GET /metrics    prometheus metrics
//   - GET /ws/state   snapshot pushed on every change
type Server struct {
	app    *fiber.App
	source SnapshotSource
}

func NewServer(source SnapshotSource) *Server {
	s := &Server{
		app:    fiber.New(fiber.Config{DisableStartupMessage: true}),
		source: source,
	}

	s.app.Get("/api/state", s.getState)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/state", websocket.New(s.streamState))

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	slog.Info("status server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) getState(c *fiber.Ctx) error {
	return c.JSON(s.source.Snapshot())
}

func (s *Server) streamState(c *websocket.Conn) {
	remote := c.RemoteAddr().String()
	slog.Debug("state subscriber connected", "remote", remote)

	var last []byte
	push := func() bool {
		data, err := json.Marshal(s.source.Snapshot())
		if err != nil {
			slog.Error("failed to encode snapshot", "error", err)
			return true
		}
		if bytes.Equal(data, last) {
			return true
		}
		last = data
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("failed to push state", "remote", remote, "error", err)
			return false
		}
		return true
	}

	if !push() {
		return
	}
	timer := utils.SetIntervalTimer(StatePushInterval, func() { push() })
	defer timer.Stop()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if fastws.IsUnexpectedCloseError(err, fastws.CloseNormalClosure, fastws.CloseGoingAway) {
				slog.Debug("state subscriber dropped", "remote", remote, "error", err)
			}
			break
		}
	}
	slog.Debug("state subscriber disconnected", "remote", remote)
}
