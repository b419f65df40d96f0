package signalling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gosocketio "github.com/graarh/golang-socketio"
	"github.com/graarh/golang-socketio/transport"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/sockets"
)

// relay is a graarh Socket.IO server that accepts every registration and
// records hang-ups.
type relay struct {
	url      string
	channels chan *gosocketio.Channel
	hangUps  chan api.HangUp
}

func startRelay(t *testing.T) *relay {
	t.Helper()
	r := &relay{
		channels: make(chan *gosocketio.Channel, 1),
		hangUps:  make(chan api.HangUp, 1),
	}
	server := gosocketio.NewServer(transport.GetDefaultWebsocketTransport())
	_ = server.On(gosocketio.OnConnection, func(c *gosocketio.Channel) {
		_ = c.Emit("init", nil)
		r.channels <- c
	})
	_ = server.On("init", func(_ *gosocketio.Channel, _ json.RawMessage) bool { return true })
	_ = server.On("hang-up", func(_ *gosocketio.Channel, m api.HangUp) { r.hangUps <- m })

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	r.url = ts.URL
	return r
}

func waitForSnapshot(t *testing.T, c *CallCoordinator, what string, ok func(Snapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ok(c.Snapshot()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, snapshot = %+v", what, c.Snapshot())
}

func TestCoordinatorCallsPeerOverSocketIO(t *testing.T) {
	r := startRelay(t)

	for trial := 0; trial < 10; trial++ {
		server := NewServerSession(SessionConfig{
			Server:     r.url,
			DisableSSL: true,
			Identity:   testIdentity,
		}, sockets.NewSocketIODialer())
		c := NewCallCoordinator(Options{}, server, func() (domain.MediaEngine, error) {
			return &fakeEngine{}, nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		result := make(chan error, 1)
		go func() { result <- c.Run(ctx) }()

		channel := <-r.channels
		waitForSnapshot(t, c, "registration", func(s Snapshot) bool { return s.State == domain.Registered })

		// the relay announces room and the ready camera back to back
		_ = channel.Emit("client-count", api.ClientCount{MaxConnected: 1, MaxStreaming: 1})
		_ = channel.Emit("device-ready", "cam1")
		waitForSnapshot(t, c, "call to cam1", func(s Snapshot) bool {
			return s.PeerID == "cam1" && s.State == domain.PeerConnected
		})

		c.Submit(CommandExit)
		select {
		case err := <-result:
			if err != nil {
				t.Fatalf("trial %d: Run() = %v", trial, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("trial %d: Run did not return", trial)
		}
		select {
		case m := <-r.hangUps:
			if m.Target != "cam1" || m.Source != testIdentity {
				t.Errorf("trial %d: hang-up = %+v", trial, m)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("trial %d: relay never saw the hang-up", trial)
		}
		cancel()
	}
}
