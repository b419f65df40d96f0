package signalling

import (
	"testing"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
)

func TestPeerDirectoryReadyFollowsLatestCapacity(t *testing.T) {
	d := NewPeerDirectory()

	if d.Ready("cam1") {
		t.Error("ready without capacity reported callable")
	}

	d.UpdateCapacity(domain.Capacity{ConnectedClients: 0, MaxConnectedClients: 1, StreamingClients: 0, MaxStreamingClients: 1})
	if !d.Ready("cam1") {
		t.Error("free relay reported busy")
	}

	d.UpdateCapacity(domain.Capacity{ConnectedClients: 1, MaxConnectedClients: 1, StreamingClients: 0, MaxStreamingClients: 1})
	if d.Ready("cam1") {
		t.Error("full relay reported free")
	}
}

func TestPeerDirectoryRecords(t *testing.T) {
	d := NewPeerDirectory()
	d.Authenticated("cam2")
	d.Ready("cam1")
	d.Authenticated("cam1")

	peers := d.Peers()
	want := []domain.PeerRecord{
		{ID: "cam1", Authenticated: true, Ready: true},
		{ID: "cam2", Authenticated: true},
	}
	if len(peers) != len(want) {
		t.Fatalf("peers = %+v", peers)
	}
	for i := range want {
		if peers[i] != want[i] {
			t.Errorf("peers[%d] = %+v, want %+v", i, peers[i], want[i])
		}
	}
	if d.OfferedPeer() != "cam1" {
		t.Errorf("offered = %q", d.OfferedPeer())
	}

	d.Disconnected("cam1")
	if d.OfferedPeer() != "" {
		t.Errorf("offered after disconnect = %q", d.OfferedPeer())
	}
	if p := d.Peers()[0]; p.Ready || p.Authenticated {
		t.Errorf("disconnected peer = %+v", p)
	}

	d.Disconnected("unknown")
	if len(d.Peers()) != 2 {
		t.Error("disconnect of unknown peer created a record")
	}
}

func TestPeerDirectoryUpdateCapacityReportsFreed(t *testing.T) {
	full := domain.Capacity{ConnectedClients: 1, MaxConnectedClients: 1, StreamingClients: 0, MaxStreamingClients: 1}
	free := domain.Capacity{ConnectedClients: 0, MaxConnectedClients: 1, StreamingClients: 0, MaxStreamingClients: 1}

	d := NewPeerDirectory()
	if !d.UpdateCapacity(free) {
		t.Error("first free count not reported as freed")
	}
	if d.UpdateCapacity(free) {
		t.Error("repeated free count reported as freed")
	}
	if d.UpdateCapacity(full) {
		t.Error("full count reported as freed")
	}
	if !d.UpdateCapacity(free) {
		t.Error("full to free not reported as freed")
	}
}
