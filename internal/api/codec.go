package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/domain"
)

func malformed(event Event, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrMalformedMessage, event, fmt.Sprintf(format, args...))
}

// Decode parses an inbound relay payload for the given event. Any parse
// failure or missing required field yields an error wrapping
// domain.ErrMalformedMessage; the caller logs and drops the message.
func Decode(event Event, payload json.RawMessage) (Message, error) {
	switch event {
	case EventInit:
		return Init{}, nil
	case EventDeviceAuthenticated:
		id, err := decodePeerID(event, payload)
		if err != nil {
			return nil, err
		}
		return DeviceAuthenticated{PeerID: id}, nil
	case EventDeviceReady:
		id, err := decodePeerID(event, payload)
		if err != nil {
			return nil, err
		}
		return DeviceReady{PeerID: id}, nil
	case EventDeviceDisconnected:
		id, err := decodePeerID(event, payload)
		if err != nil {
			return nil, err
		}
		return DeviceDisconnected{PeerID: id}, nil
	case EventClientCount:
		return decodeClientCount(payload)
	case EventVideoFormat:
		var raw struct {
			Projection *string `json:"projection"`
		}
		if err := decodeObject(event, payload, &raw); err != nil {
			return nil, err
		}
		if raw.Projection == nil {
			return nil, malformed(event, "missing projection")
		}
		return VideoFormat{Projection: *raw.Projection}, nil
	case EventVideoAnswer:
		var msg VideoAnswer
		if err := decodeObject(event, payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case EventNewIceCandidate:
		return decodeCandidate(payload)
	case EventMessage:
		var msg ControlMessage
		if err := decodeObject(event, payload, &msg); err != nil {
			return nil, err
		}
		if msg.Op == "" {
			return nil, malformed(event, "missing op")
		}
		return msg, nil
	case EventHangUp:
		var msg HangUp
		if trimmed := bytes.TrimSpace(payload); len(trimmed) == 0 || string(trimmed) == "null" {
			return msg, nil
		}
		if err := decodeObject(event, payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	}
	return nil, malformed(event, "unknown event")
}

// Encode returns the event name and JSON payload for an outbound message.
func Encode(msg Message) (Event, []byte, error) {
	switch msg.(type) {
	case RegistrationRequest, VideoOffer, NewIceCandidate, ControlMessage, HangUp:
	default:
		return "", nil, fmt.Errorf("message %T is not sent by the viewer", msg)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return msg.Event(), data, nil
}

// DecodeRegistrationAck interprets the relay's acknowledgement of the
// registration request. The relay answers with a single boolean, which
// Socket.IO may deliver bare or wrapped in an argument array.
func DecodeRegistrationAck(payload []byte) (bool, error) {
	payload = bytes.TrimSpace(payload)
	var ok bool
	if err := json.Unmarshal(payload, &ok); err == nil {
		return ok, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(payload, &args); err != nil || len(args) != 1 {
		return false, malformed(EventInit, "ack is not a single boolean: %q", payload)
	}
	if err := json.Unmarshal(args[0], &ok); err != nil {
		return false, malformed(EventInit, "ack is not a single boolean: %q", payload)
	}
	return ok, nil
}

func decodeObject(event Event, payload json.RawMessage, target any) error {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return malformed(event, "payload is not an object")
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return malformed(event, "%v", err)
	}
	return nil
}

func decodePeerID(event Event, payload json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(payload, &id); err != nil {
		return "", malformed(event, "peer id is not a string")
	}
	if id == "" {
		return "", malformed(event, "empty peer id")
	}
	return id, nil
}

func decodeClientCount(payload json.RawMessage) (Message, error) {
	var raw struct {
		Connected    *int `json:"connected-clients"`
		MaxConnected *int `json:"max-connected-clients"`
		Streaming    *int `json:"streaming-clients"`
		MaxStreaming *int `json:"max-streaming-clients"`
	}
	if err := decodeObject(EventClientCount, payload, &raw); err != nil {
		return nil, err
	}
	if raw.Connected == nil || raw.MaxConnected == nil || raw.Streaming == nil || raw.MaxStreaming == nil {
		return nil, malformed(EventClientCount, "missing counter")
	}
	return ClientCount{
		Connected:    *raw.Connected,
		MaxConnected: *raw.MaxConnected,
		Streaming:    *raw.Streaming,
		MaxStreaming: *raw.MaxStreaming,
	}, nil
}

func decodeCandidate(payload json.RawMessage) (Message, error) {
	var raw struct {
		Target    string `json:"target"`
		Source    string `json:"source"`
		Type      string `json:"type"`
		Candidate *struct {
			Candidate     *string `json:"candidate"`
			SDPMid        SDPMid  `json:"sdpMid"`
			SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
		} `json:"candidate"`
	}
	if err := decodeObject(EventNewIceCandidate, payload, &raw); err != nil {
		return nil, err
	}
	if raw.Candidate == nil || raw.Candidate.Candidate == nil {
		return nil, malformed(EventNewIceCandidate, "missing candidate")
	}
	return NewIceCandidate{
		Target: raw.Target,
		Source: raw.Source,
		Type:   raw.Type,
		Candidate: Candidate{
			Candidate:     *raw.Candidate.Candidate,
			SDPMid:        raw.Candidate.SDPMid,
			SDPMLineIndex: raw.Candidate.SDPMLineIndex,
		},
	}, nil
}
