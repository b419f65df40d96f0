package media

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/config"
	"github.com/pion/webrtc/v4"
)

func TestLoggerFactory(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	log := NewLoggerFactory(logger).NewLogger("ice")

	log.Tracef("hidden %d", 1)
	log.Debugf("gathering %s", "host")
	log.Warn("slow")
	log.Errorf("failed: %v", "boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("trace output below the handler level was written")
	}
	for _, want := range []string{
		`level=DEBUG msg="gathering host" component=pion scope=ice`,
		`level=WARN msg=slow component=pion scope=ice`,
		`level=ERROR msg="failed: boom"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}

func TestFetchRTCConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rtc-config":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"iceServers":[{"urls":["turn:turn.example.org:3478"],"username":"u","credential":"p"}]}`))
		case "/empty":
			_, _ = w.Write([]byte(`{"iceServers":[]}`))
		case "/garbage":
			_, _ = w.Write([]byte(`<html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg, err := FetchRTCConfig(srv.URL + "/rtc-config")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "turn:turn.example.org:3478" || cfg.ICEServers[0].Credential != "p" {
		t.Errorf("config = %+v", cfg)
	}

	for _, path := range []string{"/empty", "/garbage", "/missing"} {
		if _, err := FetchRTCConfig(srv.URL + path); err == nil {
			t.Errorf("%s: expected error", path)
		}
	}
}

func testConfig() Config {
	return Config{
		PeerConnection:   api.PeerConnectionConfig{},
		Codecs:           config.DefaultCodecs(),
		KeyframeInterval: time.Second,
	}
}

func TestNewFactoryRejectsBadCodec(t *testing.T) {
	cfg := testConfig()
	cfg.Codecs = append(cfg.Codecs, config.Codec{
		Params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/unknown", ClockRate: 90000},
			PayloadType:        120,
		},
	})
	if _, err := NewFactory(cfg); err == nil {
		t.Fatal("expected error for codec without type")
	}
}

func TestNewFactoryRejectsBadPortRange(t *testing.T) {
	cfg := testConfig()
	cfg.PortMin, cfg.PortMax = 50100, 50000
	if _, err := NewFactory(cfg); err == nil {
		t.Fatal("expected error for inverted port range")
	}
}

func TestPreflight(t *testing.T) {
	if err := Preflight(testConfig()); err != nil {
		t.Fatal(err)
	}
}

type recordingEvents struct {
	mu         sync.Mutex
	negotiate  chan struct{}
	candidates int
}

func (r *recordingEvents) NegotiationNeeded() {
	select {
	case r.negotiate <- struct{}{}:
	default:
	}
}

func (r *recordingEvents) LocalCandidate(webrtc.ICECandidateInit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates++
}

func (r *recordingEvents) RemoteTrack(string, string)    {}
func (r *recordingEvents) ConnectionStateChanged(string) {}

func TestPeerEngineOffer(t *testing.T) {
	f, err := NewFactory(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	engine, err := f.NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	if _, err := engine.CreateOffer(); err == nil {
		t.Error("offer before Start")
	}

	events := &recordingEvents{negotiate: make(chan struct{}, 1)}
	if err := engine.Start(events); err != nil {
		t.Fatal(err)
	}

	select {
	case <-events.negotiate:
	case <-time.After(5 * time.Second):
		t.Fatal("negotiation needed not signalled")
	}

	offer, err := engine.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		t.Errorf("type = %s", offer.Type)
	}
	for _, want := range []string{"m=video", "m=audio", "a=recvonly"} {
		if !strings.Contains(offer.SDP, want) {
			t.Errorf("offer misses %q", want)
		}
	}

	mid := "0"
	if err := engine.AddICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 10.0.0.2 6000 typ host", SDPMid: &mid}); err != nil {
		t.Errorf("candidate before answer: %v", err)
	}
	if got := len(engine.(*PeerEngine).pending); got != 1 {
		t.Errorf("pending candidates = %d", got)
	}

	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestPeerEngineWithoutAudio(t *testing.T) {
	cfg := testConfig()
	cfg.DisableAudio = true
	f, err := NewFactory(cfg)
	if err != nil {
		t.Fatal(err)
	}
	engine, _ := f.NewEngine()
	defer engine.Close()

	if err := engine.Start(&recordingEvents{negotiate: make(chan struct{}, 1)}); err != nil {
		t.Fatal(err)
	}
	offer, err := engine.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(offer.SDP, "m=audio") {
		t.Error("audio transceiver added with audio disabled")
	}
}
