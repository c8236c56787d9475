package voicebridge

import (
	"errors"
	"fmt"
)

var (
	ErrHandshakeTimeout = errors.New("connection timed out")
	ErrDisconnected     = errors.New("disconnected")
	ErrNotReady         = errors.New("connection not ready")
	ErrSessionStopped   = errors.New("session stopped")
	ErrThrottled        = errors.New("frame throttled")
)

// ConnectionError is a terminal connection failure: handshake timeout,
// socket failure or rejected setup. It is never retried automatically.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ResourceError reports an unavailable or denied capture device.
type ResourceError struct {
	Device string
	Err    error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Device, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
