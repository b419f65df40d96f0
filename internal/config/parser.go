package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/pion/webrtc/v4"
)

type RawSignallingConfig struct {
	Server           *string `yaml:"server" json:"server"`
	DisableSSL       *bool   `yaml:"disableSsl" json:"disableSsl"`
	RemoteOfferer    *bool   `yaml:"remoteOfferer" json:"remoteOfferer"`
	Identity         *string `yaml:"identity" json:"identity"`
	ConnectTimeout   *string `yaml:"connectTimeout" json:"connectTimeout"`
	AckTimeout       *string `yaml:"ackTimeout" json:"ackTimeout"`
	StrictCandidates *bool   `yaml:"strictCandidates" json:"strictCandidates"`
}

func (r RawSignallingConfig) ToDomain() (SignallingConfig, error) {
	var cfg SignallingConfig
	if r.Server != nil {
		cfg.Server = *r.Server
	}
	if r.DisableSSL != nil {
		cfg.DisableSSL = *r.DisableSSL
	}
	if r.RemoteOfferer != nil {
		cfg.RemoteOfferer = *r.RemoteOfferer
	}
	if r.Identity != nil {
		cfg.Identity = *r.Identity
	}
	if r.StrictCandidates != nil {
		cfg.StrictCandidates = *r.StrictCandidates
	}

	var err error
	if cfg.ConnectTimeout, err = parseDuration("connectTimeout", r.ConnectTimeout); err != nil {
		return SignallingConfig{}, err
	}
	if cfg.AckTimeout, err = parseDuration("ackTimeout", r.AckTimeout); err != nil {
		return SignallingConfig{}, err
	}
	return cfg, nil
}

type RawWebRTCConfig struct {
	PeerConnectionConfig *api.PeerConnectionConfig `yaml:"peerConnectionConfig" json:"peerConnectionConfig"`
	RTCConfigURL         *string                   `yaml:"rtcConfigUrl" json:"rtcConfigUrl"`
	PortMin              *uint16                   `yaml:"portMin" json:"portMin"`
	PortMax              *uint16                   `yaml:"portMax" json:"portMax"`
	Codecs               *[]RawCodec               `yaml:"codecs" json:"codecs"`
	KeyframeInterval     *string                   `yaml:"keyframeInterval" json:"keyframeInterval"`
	DisableAudio         *bool                     `yaml:"disableAudio" json:"disableAudio"`
}

type RawCodec struct {
	Params struct {
		MimeType    string `json:"mimeType" yaml:"mimeType"`
		ClockRate   uint32 `json:"clockRate" yaml:"clockRate"`
		PayloadType uint8  `json:"payloadType" yaml:"payloadType"`
		Channels    uint16 `json:"channels" yaml:"channels"`
		SDPFmtpLine string `json:"sdpFmtpLine" yaml:"sdpFmtpLine"`
	} `json:"params" yaml:"params"`
	Type string `json:"type" yaml:"type"`
}

func (r RawWebRTCConfig) ToDomain() (WebRTCConfig, error) {
	var cfg WebRTCConfig
	if r.PeerConnectionConfig != nil {
		cfg.PeerConnectionConfig = *r.PeerConnectionConfig
	}
	if r.RTCConfigURL != nil {
		cfg.RTCConfigURL = *r.RTCConfigURL
	}
	if r.PortMin != nil {
		cfg.PortMin = *r.PortMin
	}
	if r.PortMax != nil {
		cfg.PortMax = *r.PortMax
	}
	if r.Codecs != nil {
		cfg.Codecs = parseCodecs(*r.Codecs)
	}
	if r.DisableAudio != nil {
		cfg.DisableAudio = *r.DisableAudio
	}
	var err error
	if cfg.KeyframeInterval, err = parseDuration("keyframeInterval", r.KeyframeInterval); err != nil {
		return WebRTCConfig{}, err
	}
	return cfg, nil
}

type RawLogConfig struct {
	Level   *string `yaml:"level" json:"level"`
	NoColor *bool   `yaml:"noColor" json:"noColor"`
}

func (r RawLogConfig) ToDomain() LogConfig {
	var cfg LogConfig
	if r.Level != nil {
		cfg.Level = *r.Level
	}
	if r.NoColor != nil {
		cfg.NoColor = *r.NoColor
	}
	return cfg
}

type RawStatusConfig struct {
	Listen *string `yaml:"listen" json:"listen"`
}

func (r RawStatusConfig) ToDomain() StatusConfig {
	var cfg StatusConfig
	if r.Listen != nil {
		cfg.Listen = *r.Listen
	}
	return cfg
}

func parseDuration(field string, raw *string) (time.Duration, error) {
	if raw == nil || *raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, *raw, err)
	}
	return d, nil
}

func parseCodecs(rawCodecs []RawCodec) []Codec {
	result := make([]Codec, 0, len(rawCodecs))

	for _, rawCodec := range rawCodecs {
		capability := webrtc.RTPCodecCapability{
			MimeType:    rawCodec.Params.MimeType,
			ClockRate:   rawCodec.Params.ClockRate,
			Channels:    rawCodec.Params.Channels,
			SDPFmtpLine: rawCodec.Params.SDPFmtpLine,
		}

		if strings.HasPrefix(strings.ToLower(rawCodec.Params.MimeType), "video/") {
			capability.RTCPFeedback = videoFeedback
		}

		params := webrtc.RTPCodecParameters{
			RTPCodecCapability: capability,
			PayloadType:        webrtc.PayloadType(rawCodec.Params.PayloadType),
		}

		result = append(result, Codec{Params: params, Type: webrtc.NewRTPCodecType(rawCodec.Type)})
	}

	return result
}
