package api

import (
	"encoding/json"
	"strconv"

	"github.com/pion/webrtc/v4"
)

// Message is one decoded relay message. The concrete types below form a
// closed set.
type Message interface {
	Event() Event
}

type Init struct{}

type InitAck struct {
	OK bool
}

type RegistrationRequest struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
}

type DeviceAuthenticated struct {
	PeerID string
}

type DeviceReady struct {
	PeerID string
}

type DeviceDisconnected struct {
	PeerID string
}

type ClientCount struct {
	Connected    int `json:"connected-clients"`
	MaxConnected int `json:"max-connected-clients"`
	Streaming    int `json:"streaming-clients"`
	MaxStreaming int `json:"max-streaming-clients"`
}

type VideoFormat struct {
	Projection string `json:"projection"`
}

type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type VideoOffer struct {
	Target string `json:"target"`
	Source string `json:"source,omitempty"`
	SDP    SDP    `json:"sdp"`
}

// VideoAnswer keeps SDP optional so that a missing description can be told
// apart from an empty one.
type VideoAnswer struct {
	Target string `json:"target,omitempty"`
	Source string `json:"source,omitempty"`
	SDP    *SDP   `json:"sdp,omitempty"`
}

type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        SDPMid  `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type NewIceCandidate struct {
	Target    string    `json:"target"`
	Source    string    `json:"source"`
	Type      string    `json:"type"`
	Candidate Candidate `json:"candidate"`
}

type ControlMessage struct {
	Target string   `json:"target"`
	Source string   `json:"source"`
	Op     string   `json:"op"`
	Type   *string  `json:"type,omitempty"`
	Value  *float64 `json:"value,omitempty"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
}

type HangUp struct {
	Target string `json:"target,omitempty"`
	Source string `json:"source,omitempty"`
}

func (Init) Event() Event                { return EventInit }
func (InitAck) Event() Event             { return EventInit }
func (RegistrationRequest) Event() Event { return EventInit }
func (DeviceAuthenticated) Event() Event { return EventDeviceAuthenticated }
func (DeviceReady) Event() Event         { return EventDeviceReady }
func (DeviceDisconnected) Event() Event  { return EventDeviceDisconnected }
func (ClientCount) Event() Event         { return EventClientCount }
func (VideoFormat) Event() Event         { return EventVideoFormat }
func (VideoOffer) Event() Event          { return EventVideoOffer }
func (VideoAnswer) Event() Event         { return EventVideoAnswer }
func (NewIceCandidate) Event() Event     { return EventNewIceCandidate }
func (ControlMessage) Event() Event      { return EventMessage }
func (HangUp) Event() Event              { return EventHangUp }

// SDPMid is the media stream id of a candidate. The relay sends it as a
// number; browsers and pion use strings. Ids in canonical decimal form are
// written as numbers, anything else ("01", "+1", "audio") stays a string.
type SDPMid string

func (m SDPMid) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(m)); err == nil && strconv.Itoa(n) == string(m) {
		return []byte(string(m)), nil
	}
	return json.Marshal(string(m))
}

func (m *SDPMid) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = SDPMid(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = SDPMid(n.String())
	return nil
}

func CandidateFromInit(c webrtc.ICECandidateInit) Candidate {
	out := Candidate{Candidate: c.Candidate, SDPMLineIndex: c.SDPMLineIndex}
	if c.SDPMid != nil {
		out.SDPMid = SDPMid(*c.SDPMid)
	}
	return out
}

func (c Candidate) ICECandidateInit() webrtc.ICECandidateInit {
	init := webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMLineIndex: c.SDPMLineIndex}
	if c.SDPMid != "" {
		mid := string(c.SDPMid)
		init.SDPMid = &mid
	}
	return init
}

func SDPFromSession(sd webrtc.SessionDescription) SDP {
	return SDP{Type: sd.Type.String(), SDP: sd.SDP}
}

func (s SDP) SessionDescription() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(s.Type), SDP: s.SDP}
}
