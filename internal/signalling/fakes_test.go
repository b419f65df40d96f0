package signalling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/sockets"
	"github.com/pion/webrtc/v4"
)

type emitted struct {
	event   string
	payload json.RawMessage
}

type fakeConn struct {
	mu           sync.Mutex
	handlers     map[string]sockets.Handler
	signals      map[string]func()
	onCalls      map[string]int
	offCalls     map[string]int
	emits        []emitted
	acks         []emitted
	ackReply     []byte
	ackErr       error
	onDisconnect func(error)
	closeCount   int
	resumes      int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		handlers: make(map[string]sockets.Handler),
		signals:  make(map[string]func()),
		onCalls:  make(map[string]int),
		offCalls: make(map[string]int),
		ackReply: []byte("true"),
	}
}

func rawPayload(payload any) json.RawMessage {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw
	}
	data, _ := json.Marshal(payload)
	return data
}

func (f *fakeConn) On(event string, h sockets.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
	f.onCalls[event]++
	return nil
}

func (f *fakeConn) OnSignal(event string, h func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals[event] = h
	f.onCalls[event]++
	return nil
}

func (f *fakeConn) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
	delete(f.signals, event)
	f.offCalls[event]++
}

func (f *fakeConn) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
}

func (f *fakeConn) OnDisconnect(h func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = h
}

func (f *fakeConn) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeCount > 0 {
		return sockets.ErrClosed
	}
	f.emits = append(f.emits, emitted{event: event, payload: rawPayload(payload)})
	return nil
}

func (f *fakeConn) Ack(event string, payload any, _ time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, emitted{event: event, payload: rawPayload(payload)})
	return f.ackReply, f.ackErr
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++
	return nil
}

// deliver plays a relay event with a JSON payload into the installed handler.
func (f *fakeConn) deliver(t *testing.T, event, payload string) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[event]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no handler installed for %q", event)
	}
	h(json.RawMessage(payload))
}

// signal plays an event without payload. It reports whether a handler was
// installed.
func (f *fakeConn) signal(event string) bool {
	f.mu.Lock()
	h, ok := f.signals[event]
	f.mu.Unlock()
	if ok {
		h()
	}
	return ok
}

func (f *fakeConn) disconnect(err error) {
	f.mu.Lock()
	h := f.onDisconnect
	f.mu.Unlock()
	h(err)
}

func (f *fakeConn) emitsFor(event string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.emits {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeDialer struct {
	conn *fakeConn
	err  error
	url  string
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (sockets.Conn, error) {
	d.url = url
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// blockingDialer never connects on its own.
type blockingDialer struct{}

func (blockingDialer) Dial(ctx context.Context, _ string) (sockets.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeEngine struct {
	mu         sync.Mutex
	events     domain.MediaEvents
	startErr   error
	offer      webrtc.SessionDescription
	offerErr   error
	offers     int
	local      []webrtc.SessionDescription
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     int
}

func (e *fakeEngine) Start(events domain.MediaEvents) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = events
	return e.startErr
}

func (e *fakeEngine) CreateOffer() (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offers++
	return e.offer, e.offerErr
}

func (e *fakeEngine) SetLocalDescription(sdp webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local = append(e.local, sdp)
	return nil
}

func (e *fakeEngine) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remote = append(e.remote, sdp)
	return nil
}

func (e *fakeEngine) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = append(e.candidates, candidate)
	return nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

type harness struct {
	t       *testing.T
	c       *CallCoordinator
	conn    *fakeConn
	engine  *fakeEngine
	engines int
}

const testIdentity = "viewer-1"

func newHarness(t *testing.T, options Options) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		conn: newFakeConn(),
		engine: &fakeEngine{
			offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"},
		},
	}
	server := NewServerSession(SessionConfig{
		Server:   "https://relay.example.org:8000",
		Identity: testIdentity,
	}, &fakeDialer{conn: h.conn})
	h.c = NewCallCoordinator(options, server, func() (domain.MediaEngine, error) {
		h.engines++
		return h.engine, nil
	})
	h.c.async = func(f func()) { f() }
	h.c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return h
}

// pump handles every queued event, including events queued while handling.
func (h *harness) pump() {
	for {
		select {
		case ev := <-h.c.events:
			h.c.handle(ev)
		default:
			return
		}
	}
}

func (h *harness) connect() {
	h.t.Helper()
	h.c.start(context.Background())
	if h.c.state != domain.Connected {
		h.t.Fatalf("state after connect = %s", h.c.state)
	}
}

func (h *harness) register() {
	h.t.Helper()
	h.connect()
	if !h.conn.signal("init") {
		h.t.Fatal("init handler not installed")
	}
	h.pump()
	if h.c.state != domain.Registered {
		h.t.Fatalf("state after registration = %s", h.c.state)
	}
}

func (h *harness) callPeer(peerID string) {
	h.t.Helper()
	h.register()
	h.announceFreePeer(peerID)
	if h.c.state != domain.PeerConnected {
		h.t.Fatalf("state after device-ready = %s", h.c.state)
	}
}

// announceFreePeer plays a free client-count followed by device-ready.
func (h *harness) announceFreePeer(peerID string) {
	h.t.Helper()
	h.conn.deliver(h.t, "client-count", `{"connected-clients":0,"max-connected-clients":1,"streaming-clients":0,"max-streaming-clients":1}`)
	h.conn.deliver(h.t, "device-ready", `"`+peerID+`"`)
	h.pump()
}

func (h *harness) negotiate(peerID string) {
	h.t.Helper()
	h.callPeer(peerID)
	h.engine.events.NegotiationNeeded()
	h.pump()
	if h.c.state != domain.CallNegotiating {
		h.t.Fatalf("state after negotiation needed = %s", h.c.state)
	}
}

func (h *harness) startCall(peerID string) {
	h.t.Helper()
	h.negotiate(peerID)
	h.conn.deliver(h.t, "video-answer", `{"sdp":{"type":"answer","sdp":"v=0 answer"}}`)
	h.pump()
	if h.c.state != domain.CallStarted {
		h.t.Fatalf("state after answer = %s", h.c.state)
	}
}

func (h *harness) assertFatal(want domain.AppState, sentinel error) {
	h.t.Helper()
	if h.c.state != want {
		h.t.Errorf("state = %s, want %s", h.c.state, want)
	}
	if !h.c.stopping {
		h.t.Fatal("cleanup did not run")
	}
	if !errors.Is(h.c.result, sentinel) {
		h.t.Errorf("result = %v, want %v", h.c.result, sentinel)
	}
	if h.conn.closeCount != 1 {
		h.t.Errorf("connection closed %d times, want 1", h.conn.closeCount)
	}
	if snap := h.c.Snapshot(); !snap.Failed || snap.Error == "" {
		h.t.Errorf("snapshot = %+v, want a reported failure", snap)
	}
}

func decodePayload(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("payload %s: %v", raw, err)
	}
	return out
}
