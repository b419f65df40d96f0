package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AppState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_viewer_app_state",
		Help: "Current application state code (1000 server band, 2000 registration, 3000 peer, 4000 call)",
	})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_state_transitions_total",
		Help: "Application state transitions",
	}, []string{"to"})

	SignallingMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_signalling_messages_total",
		Help: "Total signalling messages",
	}, []string{"type", "direction"}) // direction: "in" | "out"

	MalformedMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_malformed_messages_total",
		Help: "Inbound relay messages dropped because they could not be parsed",
	}, []string{"type"})

	ICECandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_ice_candidates_total",
		Help: "Total number of ICE candidates",
	}, []string{"direction"})

	ControlCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_control_commands_total",
		Help: "Control commands sent to the peer",
	}, []string{"op"})

	PeerFree = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_viewer_peer_free",
		Help: "1 when the last client-count broadcast allowed another viewer",
	})

	CallAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_call_attempts_total",
		Help: "Device-ready notifications and what the coordinator did with them",
	}, []string{"result"}) // "started" | "busy" | "in_progress" | "not_registered" | "failed"

	CallSetupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_viewer_call_setup_seconds",
		Help:    "Time from device-ready to an accepted answer",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
	})

	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_viewer_call_duration_seconds",
		Help:    "Duration of calls",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
	})

	FatalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_fatal_errors_total",
		Help: "Fatal conditions that ended the process",
	}, []string{"reason"})

	RemoteTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "live_viewer_remote_tracks",
		Help: "Remote media tracks received from the peer",
	}, []string{"kind"})

	RTPPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_rtp_packets_total",
		Help: "Total RTP packets received",
	}, []string{"kind"})

	RTPBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_rtp_bytes_total",
		Help: "Total RTP payload bytes received",
	}, []string{"kind"})

	PLIRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_viewer_pli_requests_total",
		Help: "Total keyframe requests sent to the peer",
	})

	PeerConnectionStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_viewer_peer_connection_state_changes_total",
		Help: "Peer connection state changes",
	}, []string{"state"})

	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_viewer_config_reloads_total",
		Help: "Number of configuration reloads",
	})

	StartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_viewer_start_time_seconds",
		Help: "Process start time in Unix seconds",
	})
)
