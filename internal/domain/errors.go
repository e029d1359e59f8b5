package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when an operation needs an application session
	// and none could be joined.
	ErrNoSession = errors.New("no session started")

	ErrNotYouTube = errors.New("resource is not a YouTube video")

	ErrNoSubtitleStyle = &PreconditionError{Reason: "no subtitle style has been set for the current session"}
)

// DiscoveryParseError marks a malformed responder payload. It is logged and
// dropped, never surfaced to callers.
type DiscoveryParseError struct {
	Source string
	Err    error
}

func (e *DiscoveryParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *DiscoveryParseError) Unwrap() error { return e.Err }

// TransportError is a connection-level failure. Any TransportError resets the
// owning device to the disconnected state.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cast transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolRejectionError carries a receiver-side rejection such as
// INVALID_REQUEST or LAUNCH_ERROR.
type ProtocolRejectionError struct {
	Type   string
	Reason string
}

func (e *ProtocolRejectionError) Error() string {
	if e.Reason == "" {
		return "receiver rejected request: " + e.Type
	}
	return fmt.Sprintf("receiver rejected request: %s (%s)", e.Type, e.Reason)
}

type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
