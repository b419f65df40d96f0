package domain

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// CallSession is the single call with a bound peer. It is owned by the
// coordinator; PeerID never changes once the session exists.
type CallSession struct {
	PeerID            string
	State             AppState
	StartedAt         time.Time
	Projection        string
	LocalDescription  *webrtc.SessionDescription
	RemoteDescription *webrtc.SessionDescription
}

func NewCallSession(peerID string, now time.Time) *CallSession {
	return &CallSession{
		PeerID:    peerID,
		State:     PeerConnecting,
		StartedAt: now,
	}
}
