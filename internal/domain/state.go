package domain

import "fmt"

// AppState is the viewer lifecycle stage. Values are grouped in bands so that
// ordering comparisons (state < CallNegotiating) follow the lifecycle.
type AppState int

const (
	Initializing AppState = 0
	Error        AppState = 1 // generic error
)

const (
	Connecting AppState = 1000 + iota
	ConnectionError
	Connected // ready to register
)

const (
	Registering AppState = 2000 + iota
	RegistrationError
	Registered // ready to call a peer
	Closed     // relay connection closed by us or the relay
)

const (
	PeerConnecting AppState = 3000 + iota
	PeerConnectionError
	PeerConnected
)

const (
	CallNegotiating AppState = 4000 + iota
	CallStarted
	CallStopping
	CallStopped
	CallError
)

var stateNames = map[AppState]string{
	Initializing:        "initializing",
	Error:               "error",
	Connecting:          "connecting",
	ConnectionError:     "connection-error",
	Connected:           "connected",
	Registering:         "registering",
	RegistrationError:   "registration-error",
	Registered:          "registered",
	Closed:              "closed",
	PeerConnecting:      "peer-connecting",
	PeerConnectionError: "peer-connection-error",
	PeerConnected:       "peer-connected",
	CallNegotiating:     "call-negotiating",
	CallStarted:         "call-started",
	CallStopping:        "call-stopping",
	CallStopped:         "call-stopped",
	CallError:           "call-error",
}

func (s AppState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsCallBand reports whether s is one of the call states.
func (s AppState) IsCallBand() bool {
	return s >= CallNegotiating
}

// IsFailure reports whether s is one of the terminal error states.
func (s AppState) IsFailure() bool {
	switch s {
	case Error, ConnectionError, RegistrationError, PeerConnectionError, CallError:
		return true
	}
	return false
}

func (s AppState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
