package tool

import (
	"context"
	"errors"
	"fmt"
)

// Backend executes tool calls on behalf of the model.
//
// Execute must honor ctx cancellation. Failures should be reported as
// *ExecutionError so the router can tell the model what went wrong.
type Backend interface {
	CheckConnection(ctx context.Context) error
	ResetSession(ctx context.Context) error
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

type ErrorKind string

const (
	ErrorUnreachable ErrorKind = "unreachable"
	ErrorDenied      ErrorKind = "denied"
	ErrorTimeout     ErrorKind = "timeout"
	ErrorFailed      ErrorKind = "failed"
)

type ExecutionError struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that are not execution errors count as ErrorFailed,
// deadline errors as ErrorTimeout.
func KindOf(err error) ErrorKind {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorFailed
}

type BackendStateKind int

const (
	BackendNotConfigured BackendStateKind = iota
	BackendChecking
	BackendConnected
	BackendUnreachable
)

// BackendState is the last known reachability of a backend. Message is only
// set for BackendUnreachable.
type BackendState struct {
	Kind    BackendStateKind
	Message string
}

func (s BackendState) String() string {
	switch s.Kind {
	case BackendChecking:
		return "checking"
	case BackendConnected:
		return "connected"
	case BackendUnreachable:
		return fmt.Sprintf("unreachable(%s)", s.Message)
	default:
		return "not_configured"
	}
}

func (s BackendState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateReporter is implemented by backends that track their own
// reachability. Sessions republish it with every status.
type StateReporter interface {
	State() BackendState
}
