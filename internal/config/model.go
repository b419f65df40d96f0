package config

import (
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/pion/webrtc/v4"
)

type AppConfig struct {
	Signalling SignallingConfig `json:"signalling" yaml:"signalling"`
	WebRTC     WebRTCConfig     `json:"webrtc" yaml:"webrtc"`
	Log        LogConfig        `json:"log" yaml:"log"`
	Status     StatusConfig     `json:"status" yaml:"status"`
}

type SignallingConfig struct {
	Server        string `json:"server" yaml:"server"`
	DisableSSL    bool   `json:"disableSsl" yaml:"disableSsl"`
	RemoteOfferer bool   `json:"remoteOfferer" yaml:"remoteOfferer"`
	// Identity is the OwnIdentity sent as "sub" and "source".
	Identity string `json:"identity" yaml:"identity"`
	// ConnectTimeout bounds the initial connect. Zero waits forever.
	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connectTimeout"`
	AckTimeout     time.Duration `json:"ackTimeout" yaml:"ackTimeout"`
	// StrictCandidates drops remote candidates that arrive before negotiation.
	StrictCandidates bool `json:"strictCandidates" yaml:"strictCandidates"`
}

type WebRTCConfig struct {
	PeerConnectionConfig api.PeerConnectionConfig `json:"peerConnectionConfig" yaml:"peerConnectionConfig"`
	RTCConfigURL         string                   `json:"rtcConfigUrl" yaml:"rtcConfigUrl"`
	PortMin              uint16                   `json:"portMin" yaml:"portMin"`
	PortMax              uint16                   `json:"portMax" yaml:"portMax"`
	Codecs               []Codec                  `json:"codecs" yaml:"codecs"`
	KeyframeInterval     time.Duration            `json:"keyframeInterval" yaml:"keyframeInterval"`
	DisableAudio         bool                     `json:"disableAudio" yaml:"disableAudio"`
}

type LogConfig struct {
	Level   string `json:"level" yaml:"level"`
	NoColor bool   `json:"noColor" yaml:"noColor"`
}

type StatusConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

type Codec struct {
	Params webrtc.RTPCodecParameters `json:"params"`
	Type   webrtc.RTPCodecType       `json:"type"`
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Signalling: SignallingConfig{
			AckTimeout: 10 * time.Second,
		},
		WebRTC: WebRTCConfig{
			PeerConnectionConfig: api.DefaultPeerConnectionConfig(),
			Codecs:               DefaultCodecs(),
			KeyframeInterval:     3 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "goog-remb"},
}

func DefaultCodecs() []Codec {
	return []Codec{
		{
			Params: webrtc.RTPCodecParameters{
				RTPCodecCapability: webrtc.RTPCodecCapability{
					MimeType:     webrtc.MimeTypeH264,
					ClockRate:    90000,
					SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
					RTCPFeedback: videoFeedback,
				},
				PayloadType: 102,
			},
			Type: webrtc.RTPCodecTypeVideo,
		},
		{
			Params: webrtc.RTPCodecParameters{
				RTPCodecCapability: webrtc.RTPCodecCapability{
					MimeType:     webrtc.MimeTypeVP8,
					ClockRate:    90000,
					RTCPFeedback: videoFeedback,
				},
				PayloadType: 96,
			},
			Type: webrtc.RTPCodecTypeVideo,
		},
		{
			Params: webrtc.RTPCodecParameters{
				RTPCodecCapability: webrtc.RTPCodecCapability{
					MimeType:  webrtc.MimeTypeOpus,
					ClockRate: 48000,
					Channels:  2,
				},
				PayloadType: 111,
			},
			Type: webrtc.RTPCodecTypeAudio,
		},
	}
}
