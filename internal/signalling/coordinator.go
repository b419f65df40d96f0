package signalling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/metrics"
)

const eventQueueSize = 256

type Options struct {
	// RemoteOfferer expects the peer to create the offer. Not implemented:
	// negotiation stops with a logged error.
	RemoteOfferer bool
	// StrictCandidates drops remote candidates unless a call is negotiating
	// with the sending peer. By default they are always handed to the engine.
	StrictCandidates bool
}

// Snapshot is a read-only copy of the coordinator state.
type Snapshot struct {
	State         domain.AppState     `json:"state"`
	Identity      string              `json:"ownId"`
	PeerID        string              `json:"peerId,omitempty"`
	Projection    string              `json:"projection,omitempty"`
	Capacity      domain.Capacity     `json:"capacity"`
	Free          bool                `json:"free"`
	Peers         []domain.PeerRecord `json:"peers"`
	CallStartedAt *time.Time          `json:"callStartedAt,omitempty"`
	Failed        bool                `json:"failed"`
	Error         string              `json:"error,omitempty"`
}

// CallCoordinator owns AppState and the single CallSession. All mutation
// happens on the goroutine running Run; other goroutines only post events.
type CallCoordinator struct {
	options   Options
	identity  string
	server    *ServerSession
	newEngine domain.MediaEngineFactory
	directory *PeerDirectory

	events chan any
	done   chan struct{}
	async  func(func())
	now    func() time.Time

	state      domain.AppState
	session    *domain.CallSession
	engine     domain.MediaEngine
	projection string
	peerHungUp bool

	stopping bool
	result   error

	snapshot atomic.Pointer[Snapshot]
}

func NewCallCoordinator(options Options, server *ServerSession, newEngine domain.MediaEngineFactory) *CallCoordinator {
	c := &CallCoordinator{
		options:   options,
		identity:  server.config.Identity,
		server:    server,
		newEngine: newEngine,
		directory: NewPeerDirectory(),
		events:    make(chan any, eventQueueSize),
		done:      make(chan struct{}),
		async:     func(f func()) { go f() },
		now:       time.Now,
		state:     domain.Initializing,
	}
	c.publish()
	return c
}

// Run connects to the relay and processes events until the operator exits,
// the peer hangs up, ctx is cancelled or a fatal error occurs. It returns
// nil for a normal shutdown and the fatal error otherwise.
func (c *CallCoordinator) Run(ctx context.Context) error {
	c.start(ctx)

	for !c.stopping {
		select {
		case <-ctx.Done():
			slog.Info("interrupted, shutting down")
			c.shutdown(nil)
			c.publish()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
	return c.result
}

// start connects and waits for the relay's init. Failures go through the
// cleanup path.
func (c *CallCoordinator) start(ctx context.Context) {
	defer c.publish()
	c.setState(domain.Connecting)
	c.publish()

	if err := c.server.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			c.shutdown(nil)
			return
		}
		c.fail(domain.ConnectionError, err)
		return
	}
	c.setState(domain.Connected)

	c.server.OnDisconnect(func(err error) { c.post(transportClosed{err: err}) })
	if err := c.server.AwaitInit(func() { c.post(initReceived{}) }); err != nil {
		c.fail(domain.ConnectionError, fmt.Errorf("%w: %w", domain.ErrConnection, err))
	}
}

// Submit queues an operator command.
func (c *CallCoordinator) Submit(cmd string) {
	c.post(operatorCommand{cmd: cmd})
}

func (c *CallCoordinator) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// Done is closed once cleanup has run.
func (c *CallCoordinator) Done() <-chan struct{} {
	return c.done
}

func (c *CallCoordinator) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *CallCoordinator) handle(ev any) {
	if c.stopping {
		return
	}

	switch ev := ev.(type) {
	case initReceived:
		c.onInit()
	case registrationResult:
		c.onRegistration(ev)
	case relayMessage:
		c.onRelayMessage(ev.msg)
	case transportClosed:
		c.onTransportClosed(ev.err)
	case negotiationNeeded:
		c.onNegotiationNeeded()
	case offerReady:
		c.onOfferReady(ev)
	case localCandidate:
		c.onLocalCandidate(ev)
	case remoteTrack:
		slog.Info("receiving remote track", "kind", ev.kind, "codec", ev.codec)
		metrics.RemoteTracks.WithLabelValues(ev.kind).Inc()
	case mediaStateChanged:
		c.onMediaState(ev.state)
	case operatorCommand:
		c.onCommand(ev.cmd)
	default:
		slog.Error("unknown coordinator event", "event", fmt.Sprintf("%T", ev))
	}

	c.publish()
}

func (c *CallCoordinator) onInit() {
	if c.state != domain.Connected {
		slog.Warn("ignoring init", "state", c.state)
		return
	}
	c.setState(domain.Registering)

	c.async(func() {
		ok, err := c.server.Register()
		c.post(registrationResult{ok: ok, err: err})
	})
}

func (c *CallCoordinator) onRegistration(res registrationResult) {
	if c.state != domain.Registering {
		slog.Warn("ignoring registration result", "state", c.state)
		return
	}
	if res.err != nil {
		c.fail(domain.RegistrationError, res.err)
		return
	}
	if !res.ok {
		c.fail(domain.RegistrationError, fmt.Errorf("%w: relay refused %q", domain.ErrRegistration, c.identity))
		return
	}

	c.setState(domain.Registered)
	slog.Info("registered with signalling server", "identity", c.identity)

	installed, err := c.server.Subscribe(func(msg api.Message) { c.post(relayMessage{msg: msg}) })
	if err != nil {
		c.fail(domain.ConnectionError, fmt.Errorf("%w: %w", domain.ErrConnection, err))
		return
	}
	if !installed {
		slog.Warn("broadcast subscriptions already installed")
	}
}

func (c *CallCoordinator) onRelayMessage(msg api.Message) {
	switch m := msg.(type) {
	case api.DeviceAuthenticated:
		c.directory.Authenticated(m.PeerID)
	case api.DeviceReady:
		if c.directory.Ready(m.PeerID) {
			c.attemptCall(m.PeerID)
		}
	case api.DeviceDisconnected:
		c.directory.Disconnected(m.PeerID)
		if c.session != nil && c.session.PeerID == m.PeerID {
			slog.Warn("bound peer disconnected, call kept until hang-up or media failure", "peerId", m.PeerID)
		}
	case api.ClientCount:
		freed := c.directory.UpdateCapacity(domain.Capacity{
			ConnectedClients:    m.Connected,
			MaxConnectedClients: m.MaxConnected,
			StreamingClients:    m.Streaming,
			MaxStreamingClients: m.MaxStreaming,
		})
		// a peer announced while the relay was full is called once it has room
		if offered := c.directory.OfferedPeer(); freed && offered != "" && c.session == nil && c.state == domain.Registered {
			slog.Info("relay has room again, calling offered peer", "peerId", offered)
			c.attemptCall(offered)
		}
	case api.VideoFormat:
		c.projection = m.Projection
		if c.session != nil {
			c.session.Projection = m.Projection
		}
		slog.Info("video format", "projection", m.Projection)
	case api.VideoAnswer:
		c.onAnswer(m)
	case api.NewIceCandidate:
		c.onRemoteCandidate(m)
	case api.ControlMessage:
		slog.Debug("control message from relay", "source", m.Source, "op", m.Op)
	case api.HangUp:
		c.onHangUp(m)
	default:
		slog.Warn("unexpected relay message", "event", msg.Event())
	}
}

// attemptCall binds the session to peerID. The check for an existing session
// and its creation happen in one loop step, so a second ready peer can not
// race the first.
func (c *CallCoordinator) attemptCall(peerID string) {
	if c.session != nil {
		slog.Info("ignoring ready peer", "peerId", peerID, "boundPeer", c.session.PeerID, "error", domain.ErrCallInProgress)
		metrics.CallAttemptsTotal.WithLabelValues("in_progress").Inc()
		return
	}
	if c.state != domain.Registered {
		slog.Warn("ignoring ready peer", "peerId", peerID, "state", c.state)
		metrics.CallAttemptsTotal.WithLabelValues("not_registered").Inc()
		return
	}

	c.session = domain.NewCallSession(peerID, c.now())
	c.session.Projection = c.projection
	c.setState(domain.PeerConnecting)
	slog.Info("calling peer", "peerId", peerID)

	engine, err := c.newEngine()
	if err != nil {
		metrics.CallAttemptsTotal.WithLabelValues("failed").Inc()
		c.fail(domain.PeerConnectionError, fmt.Errorf("create media engine: %w", err))
		return
	}
	if err := engine.Start(mediaEvents{c: c}); err != nil {
		if closeErr := engine.Close(); closeErr != nil {
			slog.Warn("failed to close media engine", "error", closeErr)
		}
		metrics.CallAttemptsTotal.WithLabelValues("failed").Inc()
		c.fail(domain.PeerConnectionError, fmt.Errorf("start media engine: %w", err))
		return
	}
	c.engine = engine

	metrics.CallAttemptsTotal.WithLabelValues("started").Inc()
	c.setState(domain.PeerConnected)
}

func (c *CallCoordinator) onNegotiationNeeded() {
	if c.state != domain.PeerConnected {
		slog.Debug("negotiation needed ignored", "state", c.state)
		return
	}
	if c.options.RemoteOfferer {
		slog.Error("negotiation needed, but waiting for a remote offer is not supported; no offer sent",
			"peerId", c.session.PeerID, "error", domain.ErrRemoteOffererUnsupported)
		return
	}

	c.setState(domain.CallNegotiating)
	engine := c.engine
	c.async(func() {
		sdp, err := engine.CreateOffer()
		c.post(offerReady{sdp: sdp, err: err})
	})
}

func (c *CallCoordinator) onOfferReady(ev offerReady) {
	if c.state != domain.CallNegotiating {
		slog.Warn("dropping offer", "state", c.state)
		return
	}
	if ev.err != nil {
		c.fail(domain.CallError, fmt.Errorf("create offer: %w", ev.err))
		return
	}
	if err := c.engine.SetLocalDescription(ev.sdp); err != nil {
		c.fail(domain.CallError, fmt.Errorf("set local description: %w", err))
		return
	}
	sdp := ev.sdp
	c.session.LocalDescription = &sdp

	err := c.server.Send(api.VideoOffer{
		Target: c.session.PeerID,
		Source: c.identity,
		SDP:    api.SDPFromSession(sdp),
	})
	if err != nil {
		c.fail(domain.CallError, fmt.Errorf("send offer: %w", err))
		return
	}
	slog.Info("sent offer", "peerId", c.session.PeerID)
}

func (c *CallCoordinator) onAnswer(m api.VideoAnswer) {
	if m.Target != "" && m.Target != c.identity {
		slog.Debug("ignoring answer for another viewer", "target", m.Target)
		return
	}
	if c.state != domain.CallNegotiating {
		c.fail(domain.CallError, fmt.Errorf("%w: answer received in state %s", domain.ErrProtocolViolation, c.state))
		return
	}
	if m.SDP == nil {
		c.fail(domain.CallError, fmt.Errorf("%w: answer without sdp", domain.ErrProtocolViolation))
		return
	}
	if m.SDP.Type != api.SDPTypeAnswer {
		c.fail(domain.CallError, fmt.Errorf("%w: answer has sdp type %q", domain.ErrProtocolViolation, m.SDP.Type))
		return
	}

	sdp := m.SDP.SessionDescription()
	if err := c.engine.SetRemoteDescription(sdp); err != nil {
		c.fail(domain.CallError, fmt.Errorf("set remote description: %w", err))
		return
	}
	c.session.RemoteDescription = &sdp

	c.setState(domain.CallStarted)
	metrics.CallSetupDuration.Observe(c.now().Sub(c.session.StartedAt).Seconds())
	slog.Info("call started", "peerId", c.session.PeerID)
}

// onRemoteCandidate hands the candidate to the engine whatever the call
// state, unless strict candidates are configured.
func (c *CallCoordinator) onRemoteCandidate(m api.NewIceCandidate) {
	if m.Target != "" && m.Target != c.identity {
		slog.Debug("ignoring candidate for another viewer", "target", m.Target)
		return
	}
	if c.options.StrictCandidates {
		if c.session == nil || c.state < domain.CallNegotiating || (m.Source != "" && m.Source != c.session.PeerID) {
			slog.Warn("dropping remote candidate outside negotiation", "source", m.Source, "state", c.state)
			metrics.ICECandidatesTotal.WithLabelValues("dropped").Inc()
			return
		}
	}
	if c.engine == nil {
		slog.Warn("dropping remote candidate", "source", m.Source, "error", domain.ErrNoActiveCall)
		metrics.ICECandidatesTotal.WithLabelValues("dropped").Inc()
		return
	}

	if err := c.engine.AddICECandidate(m.Candidate.ICECandidateInit()); err != nil {
		slog.Warn("failed to add remote candidate", "candidate", m.Candidate.Candidate, "error", err)
		return
	}
	metrics.ICECandidatesTotal.WithLabelValues("in").Inc()
}

func (c *CallCoordinator) onLocalCandidate(ev localCandidate) {
	if c.state < domain.CallNegotiating {
		c.fail(domain.CallError, fmt.Errorf("%w: local candidate in state %s", domain.ErrProtocolViolation, c.state))
		return
	}

	err := c.server.Send(api.NewIceCandidate{
		Target:    c.session.PeerID,
		Source:    c.identity,
		Type:      api.CandidateMessageType,
		Candidate: api.CandidateFromInit(ev.candidate),
	})
	if err != nil {
		c.fail(domain.CallError, fmt.Errorf("send candidate: %w", err))
		return
	}
	metrics.ICECandidatesTotal.WithLabelValues("out").Inc()
}

func (c *CallCoordinator) onHangUp(m api.HangUp) {
	if c.session == nil {
		slog.Debug("ignoring hang-up, no active call")
		return
	}
	if (m.Target != "" && m.Target != c.identity) || (m.Source != "" && m.Source != c.session.PeerID) {
		slog.Debug("ignoring hang-up for another call", "source", m.Source, "target", m.Target)
		return
	}
	slog.Info("peer hung up", "peerId", c.session.PeerID)
	c.peerHungUp = true
	c.shutdown(nil)
}

func (c *CallCoordinator) onTransportClosed(err error) {
	state := domain.ConnectionError
	if c.state.IsCallBand() {
		state = domain.CallError
	}
	c.fail(state, fmt.Errorf("%w: %w", domain.ErrConnection, err))
}

func (c *CallCoordinator) onMediaState(state string) {
	metrics.PeerConnectionStateChanges.WithLabelValues(state).Inc()
	slog.Info("peer connection state changed", "state", state)

	if state == "failed" && c.session != nil {
		c.fail(domain.CallError, fmt.Errorf("%w: media connection failed", domain.ErrConnection))
	}
}

func (c *CallCoordinator) onCommand(cmd string) {
	if cmd == CommandExit {
		slog.Info("operator requested exit")
		c.shutdown(nil)
		return
	}

	msg, ok := ControlMessageFor(cmd, "", c.identity)
	if !ok {
		slog.Warn("unknown command", "command", cmd)
		return
	}
	if c.session == nil {
		slog.Warn("command not sent", "command", cmd, "error", domain.ErrNoActiveCall)
		return
	}
	msg.Target = c.session.PeerID

	if err := c.server.Send(msg); err != nil {
		slog.Error("failed to send command", "command", cmd, "error", err)
		return
	}
	metrics.ControlCommandsTotal.WithLabelValues(msg.Op).Inc()
	slog.Info("sent command", "command", cmd, "peerId", msg.Target)
}

func (c *CallCoordinator) fail(state domain.AppState, err error) {
	if c.stopping {
		return
	}
	c.setState(state)
	c.shutdown(err)
}

// shutdown is the single cleanup path. A nil reason is a normal exit.
func (c *CallCoordinator) shutdown(reason error) {
	if c.stopping {
		return
	}
	c.stopping = true
	c.result = reason

	if c.session != nil {
		if reason == nil {
			c.setState(domain.CallStopping)
			if !c.peerHungUp {
				if err := c.server.Send(api.HangUp{Target: c.session.PeerID, Source: c.identity}); err != nil {
					slog.Warn("failed to send hang-up", "error", err)
				}
			}
		}
		if c.session.RemoteDescription != nil {
			metrics.CallDuration.Observe(c.now().Sub(c.session.StartedAt).Seconds())
		}
	}

	if c.engine != nil {
		if err := c.engine.Close(); err != nil {
			slog.Warn("failed to close media engine", "error", err)
		}
		c.engine = nil
	}
	if err := c.server.Close(); err != nil {
		slog.Warn("failed to close signalling connection", "error", err)
	}

	if reason == nil {
		if c.session != nil {
			c.setState(domain.CallStopped)
		} else {
			c.setState(domain.Closed)
		}
	} else {
		metrics.FatalErrorsTotal.WithLabelValues(reasonLabel(reason)).Inc()
		slog.Error("fatal error", "state", c.state, "error", reason)
	}

	c.session = nil
	close(c.done)
}

func (c *CallCoordinator) setState(s domain.AppState) {
	if c.state == s {
		return
	}
	slog.Debug("state changed", "from", c.state, "to", s)
	c.state = s
	if c.session != nil {
		c.session.State = s
	}
	metrics.AppState.Set(float64(s))
	metrics.StateTransitionsTotal.WithLabelValues(s.String()).Inc()
}

func (c *CallCoordinator) publish() {
	snap := Snapshot{
		State:      c.state,
		Identity:   c.identity,
		Projection: c.projection,
		Capacity:   c.directory.Capacity(),
		Free:       c.directory.IsFree(),
		Peers:      c.directory.Peers(),
		Failed:     c.state.IsFailure(),
	}
	if c.session != nil {
		snap.PeerID = c.session.PeerID
		snap.Projection = c.session.Projection
		started := c.session.StartedAt
		snap.CallStartedAt = &started
	}
	if c.result != nil {
		snap.Error = c.result.Error()
	}
	c.snapshot.Store(&snap)
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrRegistration):
		return "registration"
	case errors.Is(err, domain.ErrProtocolViolation):
		return "protocol"
	case errors.Is(err, domain.ErrConnection):
		return "connection"
	default:
		return "call"
	}
}
