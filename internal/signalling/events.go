package signalling

import (
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/pion/webrtc/v4"
)

// Events consumed by the coordinator loop. Every source (relay, media
// engine, operator) posts one of these and never touches state directly.
type (
	initReceived struct{}

	registrationResult struct {
		ok  bool
		err error
	}

	relayMessage struct {
		msg api.Message
	}

	transportClosed struct {
		err error
	}

	negotiationNeeded struct{}

	offerReady struct {
		sdp webrtc.SessionDescription
		err error
	}

	localCandidate struct {
		candidate webrtc.ICECandidateInit
	}

	remoteTrack struct {
		kind  string
		codec string
	}

	mediaStateChanged struct {
		state string
	}

	operatorCommand struct {
		cmd string
	}
)

// mediaEvents forwards engine callbacks into the loop.
type mediaEvents struct {
	c *CallCoordinator
}

func (m mediaEvents) NegotiationNeeded() {
	m.c.post(negotiationNeeded{})
}

func (m mediaEvents) LocalCandidate(candidate webrtc.ICECandidateInit) {
	m.c.post(localCandidate{candidate: candidate})
}

func (m mediaEvents) RemoteTrack(kind string, codec string) {
	m.c.post(remoteTrack{kind: kind, codec: codec})
}

func (m mediaEvents) ConnectionStateChanged(state string) {
	m.c.post(mediaStateChanged{state: state})
}
