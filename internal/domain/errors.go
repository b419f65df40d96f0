package domain

import "errors"

var (
	ErrConnection        = errors.New("relay connection failed")
	ErrRegistration      = errors.New("relay registration failed")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrMalformedMessage  = errors.New("malformed message")

	ErrNoActiveCall             = errors.New("no active call")
	ErrCallInProgress           = errors.New("call already in progress")
	ErrRemoteOffererUnsupported = errors.New("remote offerer mode is not implemented")
)
