package api

// Event is a named Socket.IO event on the relay's default namespace.
type Event string

const (
	EventInit                = Event("init")
	EventDeviceAuthenticated = Event("device-authenticated")
	EventDeviceReady         = Event("device-ready")
	EventDeviceDisconnected  = Event("device-disconnected")
	EventClientCount         = Event("client-count")
	EventVideoFormat         = Event("video-format")
	EventVideoOffer          = Event("video-offer")
	EventVideoAnswer         = Event("video-answer")
	EventNewIceCandidate     = Event("new-ice-candidate")
	EventMessage             = Event("message")
	EventHangUp              = Event("hang-up")
)

// BroadcastEvents are subscribed once registration is acknowledged.
var BroadcastEvents = []Event{
	EventDeviceAuthenticated,
	EventDeviceReady,
	EventDeviceDisconnected,
	EventClientCount,
	EventVideoFormat,
	EventVideoAnswer,
	EventNewIceCandidate,
	EventMessage,
	EventHangUp,
}

const (
	RoleReceiver          = "receiver"
	CandidateMessageType  = "new-ice-candidate"
	ProjectionEquirect    = "equirectangular"
	ProjectionRectilinear = "rectilinear"
	SDPTypeOffer          = "offer"
	SDPTypeAnswer         = "answer"
)
