package status

import (
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/signalling"
)

type fakeSource struct {
	mu   sync.Mutex
	snap signalling.Snapshot
}

func (f *fakeSource) Snapshot() signalling.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) set(state domain.AppState, peerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.State = state
	f.snap.PeerID = peerID
}

func TestGetState(t *testing.T) {
	src := &fakeSource{snap: signalling.Snapshot{
		State:    domain.CallStarted,
		Identity: "viewer-1",
		PeerID:   "cam1",
		Capacity: domain.Capacity{MaxConnectedClients: 1, MaxStreamingClients: 1},
		Free:     true,
		Peers:    []domain.PeerRecord{{ID: "cam1", Authenticated: true, Ready: true}},
	}}
	s := NewServer(src)

	resp, err := s.App().Test(httptest.NewRequest(fiber.MethodGet, "/api/state", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["state"] != "call-started" || body["ownId"] != "viewer-1" || body["peerId"] != "cam1" || body["free"] != true {
		t.Errorf("body = %v", body)
	}
	peers, _ := body["peers"].([]any)
	if len(peers) != 1 {
		t.Errorf("peers = %v", body["peers"])
	}
}

func TestMetrics(t *testing.T) {
	s := NewServer(&fakeSource{})

	resp, err := s.App().Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "live_viewer_app_state") {
		t.Errorf("metrics output misses viewer gauges:\n%.500s", data)
	}
}

func TestStateSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(&fakeSource{})

	resp, err := s.App().Test(httptest.NewRequest(fiber.MethodGet, "/ws/state", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStateSocketPushesChanges(t *testing.T) {
	src := &fakeSource{}
	src.set(domain.Registered, "")
	s := NewServer(src)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = s.App().Listener(ln) }()
	defer s.Shutdown()

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/state", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	read := func() signalling.Snapshot {
		t.Helper()
		if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			t.Fatal(err)
		}
		var snap struct {
			State  string `json:"state"`
			PeerID string `json:"peerId"`
		}
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatal(err)
		}
		out := signalling.Snapshot{PeerID: snap.PeerID}
		for _, st := range []domain.AppState{domain.Registered, domain.PeerConnected} {
			if st.String() == snap.State {
				out.State = st
			}
		}
		return out
	}

	if got := read(); got.State != domain.Registered {
		t.Fatalf("first push = %+v", got)
	}

	src.set(domain.PeerConnected, "cam1")
	if got := read(); got.State != domain.PeerConnected || got.PeerID != "cam1" {
		t.Fatalf("second push = %+v", got)
	}
}
