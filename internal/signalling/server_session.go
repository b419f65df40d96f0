package signalling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/sockets"
)

const DefaultAckTimeout = 10 * time.Second

type SessionConfig struct {
	Server         string
	DisableSSL     bool
	Identity       string
	ConnectTimeout time.Duration
	AckTimeout     time.Duration
}

// ServerSession owns the relay connection: connect, the init/registration
// handshake and the broadcast subscriptions.
type ServerSession struct {
	config SessionConfig
	dialer sockets.Dialer

	conn          sockets.Conn
	subscribeOnce sync.Once
}

func NewServerSession(config SessionConfig, dialer sockets.Dialer) *ServerSession {
	if config.AckTimeout <= 0 {
		config.AckTimeout = DefaultAckTimeout
	}
	return &ServerSession{config: config, dialer: dialer}
}

// Connect blocks until the relay connection is open, fails, or the connect
// timeout passes.
func (s *ServerSession) Connect(ctx context.Context) error {
	url, err := sockets.SocketIOURL(s.config.Server, s.config.DisableSSL)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}

	if s.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}

	slog.Info("connecting to signalling server", "url", url)
	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	s.conn = conn
	slog.Info("connected to signalling server")
	return nil
}

func (s *ServerSession) OnDisconnect(f func(err error)) {
	s.conn.OnDisconnect(f)
}

// AwaitInit calls onInit for the first init event only. The handler removes
// itself when it fires. Relay events held since Connect are released once the
// handler is in place.
func (s *ServerSession) AwaitInit(onInit func()) error {
	var once sync.Once
	event := string(api.EventInit)
	err := s.conn.OnSignal(event, func() {
		once.Do(func() {
			s.conn.Off(event)
			metrics.SignallingMessagesTotal.WithLabelValues(event, "in").Inc()
			onInit()
		})
	})
	if err != nil {
		return err
	}
	s.conn.Resume()
	return nil
}

// Register sends the registration request and waits for the relay's
// boolean acknowledgement.
func (s *ServerSession) Register() (bool, error) {
	event, data, err := api.Encode(api.RegistrationRequest{Sub: s.config.Identity, Role: api.RoleReceiver})
	if err != nil {
		return false, err
	}

	slog.Debug("sending registration request", "identity", s.config.Identity)
	metrics.SignallingMessagesTotal.WithLabelValues(string(event), "out").Inc()
	reply, err := s.conn.Ack(string(event), json.RawMessage(data), s.config.AckTimeout)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrRegistration, err)
	}

	ok, err := api.DecodeRegistrationAck(reply)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrRegistration, err)
	}
	return ok, nil
}

// Subscribe installs the broadcast handlers and releases the events the relay
// sent after the registration acknowledgement. Only the first call has an
// effect; it reports whether this call installed them.
func (s *ServerSession) Subscribe(deliver func(api.Message)) (bool, error) {
	installed := false
	var err error
	s.subscribeOnce.Do(func() {
		installed = true
		for _, event := range api.BroadcastEvents {
			if err = s.conn.On(string(event), s.decoder(event, deliver)); err != nil {
				return
			}
		}
		s.conn.Resume()
	})
	return installed, err
}

func (s *ServerSession) decoder(event api.Event, deliver func(api.Message)) sockets.Handler {
	return func(payload json.RawMessage) {
		msg, err := api.Decode(event, payload)
		if err != nil {
			metrics.MalformedMessagesTotal.WithLabelValues(string(event)).Inc()
			slog.Warn("dropping malformed message", "event", event, "error", err)
			return
		}
		metrics.SignallingMessagesTotal.WithLabelValues(string(event), "in").Inc()
		deliver(msg)
	}
}

// Send encodes msg and emits it without waiting for an acknowledgement.
func (s *ServerSession) Send(msg api.Message) error {
	event, data, err := api.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.conn.Emit(string(event), json.RawMessage(data)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	metrics.SignallingMessagesTotal.WithLabelValues(string(event), "out").Inc()
	return nil
}

func (s *ServerSession) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
