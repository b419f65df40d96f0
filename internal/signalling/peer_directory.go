package signalling

import (
	"log/slog"
	"sort"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/metrics"
)

// PeerDirectory holds what the relay has broadcast about devices and their
// capacity. It is owned by the coordinator loop and is not safe for
// concurrent use.
type PeerDirectory struct {
	peers    map[string]*domain.PeerRecord
	capacity domain.Capacity
	offered  string
}

func NewPeerDirectory() *PeerDirectory {
	return &PeerDirectory{peers: make(map[string]*domain.PeerRecord)}
}

func (d *PeerDirectory) record(peerID string) *domain.PeerRecord {
	p, ok := d.peers[peerID]
	if !ok {
		p = &domain.PeerRecord{ID: peerID}
		d.peers[peerID] = p
	}
	return p
}

func (d *PeerDirectory) Authenticated(peerID string) {
	d.record(peerID).Authenticated = true
	slog.Info("peer authenticated", "peerId", peerID)
}

// Ready marks the peer callable and reports whether a call may be attempted
// with the capacity known right now.
func (d *PeerDirectory) Ready(peerID string) bool {
	d.record(peerID).Ready = true
	d.offered = peerID

	if !d.capacity.IsFree() {
		slog.Info("peer ready but relay is at capacity, ignoring",
			"peerId", peerID,
			"connected", d.capacity.ConnectedClients,
			"maxConnected", d.capacity.MaxConnectedClients,
			"streaming", d.capacity.StreamingClients,
			"maxStreaming", d.capacity.MaxStreamingClients)
		metrics.CallAttemptsTotal.WithLabelValues("busy").Inc()
		return false
	}
	slog.Info("peer ready", "peerId", peerID)
	return true
}

func (d *PeerDirectory) Disconnected(peerID string) {
	if p, ok := d.peers[peerID]; ok {
		p.Ready = false
		p.Authenticated = false
	}
	if d.offered == peerID {
		d.offered = ""
	}
	slog.Info("peer disconnected", "peerId", peerID)
}

// UpdateCapacity stores the latest client count. It reports whether the relay
// went from full to having room.
func (d *PeerDirectory) UpdateCapacity(c domain.Capacity) bool {
	wasFree := d.capacity.IsFree()
	d.capacity = c
	free := c.IsFree()
	if free {
		metrics.PeerFree.Set(1)
	} else {
		metrics.PeerFree.Set(0)
	}
	slog.Debug("client count updated",
		"connected", c.ConnectedClients,
		"maxConnected", c.MaxConnectedClients,
		"streaming", c.StreamingClients,
		"maxStreaming", c.MaxStreamingClients,
		"free", free)
	return free && !wasFree
}

func (d *PeerDirectory) IsFree() bool {
	return d.capacity.IsFree()
}

// OfferedPeer is the last peer announced as ready, or "" if it has gone.
func (d *PeerDirectory) OfferedPeer() string {
	return d.offered
}

func (d *PeerDirectory) Capacity() domain.Capacity {
	return d.capacity
}

// Peers returns a copy of the known peers ordered by id.
func (d *PeerDirectory) Peers() []domain.PeerRecord {
	out := make([]domain.PeerRecord, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
