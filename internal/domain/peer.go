package domain

// Capacity is the relay's latest client-count broadcast.
type Capacity struct {
	ConnectedClients    int `json:"connectedClients"`
	MaxConnectedClients int `json:"maxConnectedClients"`
	StreamingClients    int `json:"streamingClients"`
	MaxStreamingClients int `json:"maxStreamingClients"`
}

// IsFree reports whether one more viewer may connect and stream.
func (c Capacity) IsFree() bool {
	return c.ConnectedClients < c.MaxConnectedClients && c.StreamingClients < c.MaxStreamingClients
}

// PeerRecord is what the relay has told us about one device.
type PeerRecord struct {
	ID            string `json:"id"`
	Authenticated bool   `json:"authenticated"`
	Ready         bool   `json:"ready"`
}
