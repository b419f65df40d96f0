package domain

import "github.com/pion/webrtc/v4"

// MediaEvents receives notifications from a MediaEngine. Implementations must
// not block: they are called from the engine's own goroutines.
type MediaEvents interface {
	NegotiationNeeded()
	LocalCandidate(candidate webrtc.ICECandidateInit)
	RemoteTrack(kind string, codec string)
	ConnectionStateChanged(state string)
}

// MediaEngine builds and drives the media pipeline for one call.
type MediaEngine interface {
	Start(events MediaEvents) error
	CreateOffer() (webrtc.SessionDescription, error)
	SetLocalDescription(sdp webrtc.SessionDescription) error
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// MediaEngineFactory creates a fresh engine for every call.
type MediaEngineFactory func() (MediaEngine, error)
