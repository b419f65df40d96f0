package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/config"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/metrics"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const rtpBufferSize = 1500

var errNotStarted = errors.New("media engine not started")

type Config struct {
	PeerConnection   api.PeerConnectionConfig
	Codecs           []config.Codec
	PortMin          uint16
	PortMax          uint16
	KeyframeInterval time.Duration
	DisableAudio     bool
	LoggerFactory    logging.LoggerFactory
}

// Factory builds receive-only peer connections sharing one webrtc.API.
type Factory struct {
	api    *webrtc.API
	config Config
}

func NewFactory(cfg Config) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	for _, codec := range cfg.Codecs {
		if err := mediaEngine.RegisterCodec(codec.Params, codec.Type); err != nil {
			return nil, fmt.Errorf("failed to register codec %s: %w", codec.Params.MimeType, err)
		}
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	if cfg.KeyframeInterval > 0 {
		pliFactory, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(cfg.KeyframeInterval))
		if err != nil {
			return nil, fmt.Errorf("failed to create PLI factory: %w", err)
		}
		interceptorRegistry.Add(pliFactory)
	}

	settingEngine := webrtc.SettingEngine{LoggerFactory: cfg.LoggerFactory}
	if cfg.PortMin != 0 || cfg.PortMax != 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("invalid udp port range: %w", err)
		}
	}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(interceptorRegistry),
			webrtc.WithSettingEngine(settingEngine),
		),
		config: cfg,
	}, nil
}

func (f *Factory) NewEngine() (domain.MediaEngine, error) {
	return &PeerEngine{factory: f}, nil
}

// Preflight checks that a peer connection with the configured codecs and
// transceivers can be built.
func Preflight(cfg Config) error {
	f, err := NewFactory(cfg)
	if err != nil {
		return err
	}
	pc, err := f.api.NewPeerConnection(cfg.PeerConnection.WebrtcConfiguration())
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	defer pc.Close()
	return f.addTransceivers(pc)
}

func (f *Factory) addTransceivers(pc *webrtc.PeerConnection) error {
	kinds := []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo}
	if !f.config.DisableAudio {
		kinds = append(kinds, webrtc.RTPCodecTypeAudio)
	}
	for _, kind := range kinds {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("failed to add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

// PeerEngine is a receive-only pion peer connection for one call.
type PeerEngine struct {
	factory *Factory

	mutex   sync.Mutex
	pc      *webrtc.PeerConnection
	pending []webrtc.ICECandidateInit
	closed  atomic.Bool
}

func (e *PeerEngine) Start(events domain.MediaEvents) error {
	pc, err := e.factory.api.NewPeerConnection(e.factory.config.PeerConnection.WebrtcConfiguration())
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	pc.OnNegotiationNeeded(func() {
		events.NegotiationNeeded()
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			slog.Debug("ice gathering complete")
			return
		}
		events.LocalCandidate(candidate.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		events.ConnectionStateChanged(state.String())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		events.RemoteTrack(track.Kind().String(), track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			e.requestKeyframe(uint32(track.SSRC()))
		}
		go e.readTrack(track)
	})

	e.mutex.Lock()
	e.pc = pc
	e.mutex.Unlock()

	if err := e.factory.addTransceivers(pc); err != nil {
		return err
	}
	return nil
}

func (e *PeerEngine) peerConnection() (*webrtc.PeerConnection, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.pc == nil {
		return nil, errNotStarted
	}
	return e.pc, nil
}

func (e *PeerEngine) CreateOffer() (webrtc.SessionDescription, error) {
	pc, err := e.peerConnection()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	return pc.CreateOffer(nil)
}

func (e *PeerEngine) SetLocalDescription(sdp webrtc.SessionDescription) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}
	return pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies sdp and then any candidates that arrived
// before it.
func (e *PeerEngine) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(sdp); err != nil {
		return err
	}

	e.mutex.Lock()
	pending := e.pending
	e.pending = nil
	e.mutex.Unlock()

	for _, candidate := range pending {
		if err := pc.AddICECandidate(candidate); err != nil {
			slog.Warn("failed to add buffered candidate", "candidate", candidate.Candidate, "error", err)
		}
	}
	return nil
}

// AddICECandidate buffers candidates received before the remote description.
func (e *PeerEngine) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}

	e.mutex.Lock()
	if pc.RemoteDescription() == nil {
		e.pending = append(e.pending, candidate)
		e.mutex.Unlock()
		slog.Debug("buffering remote candidate until answer", "candidate", candidate.Candidate)
		return nil
	}
	e.mutex.Unlock()

	return pc.AddICECandidate(candidate)
}

func (e *PeerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	pc, err := e.peerConnection()
	if err != nil {
		return nil
	}
	return pc.Close()
}

func (e *PeerEngine) requestKeyframe(ssrc uint32) {
	pc, err := e.peerConnection()
	if err != nil {
		return
	}
	if err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
		slog.Debug("failed to request keyframe", "ssrc", ssrc, "error", err)
		return
	}
	metrics.PLIRequestsTotal.Inc()
}

// readTrack drains the track so the interceptors keep running and counts what
// arrives. Decoding and rendering are left to downstream consumers.
func (e *PeerEngine) readTrack(track *webrtc.TrackRemote) {
	kind := track.Kind().String()
	buf := make([]byte, rtpBufferSize)
	var packet rtp.Packet

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !e.closed.Load() {
				slog.Warn("remote track read failed", "kind", kind, "error", err)
			}
			return
		}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			continue
		}
		metrics.RTPPacketsTotal.WithLabelValues(kind).Inc()
		metrics.RTPBytesTotal.WithLabelValues(kind).Add(float64(len(packet.Payload)))
	}
}
