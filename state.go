package voicebridge

import "fmt"

type ConnectionPhase int

const (
	Disconnected ConnectionPhase = iota
	Connecting
	SettingUp
	Ready
	Error
)

func (p ConnectionPhase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case SettingUp:
		return "setting_up"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "disconnected"
	}
}

// ConnectionState is the phase of the model connection. Message is only set
// for Error.
type ConnectionState struct {
	Phase   ConnectionPhase
	Message string
}

func (s ConnectionState) String() string {
	if s.Phase == Error {
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return s.Phase.String()
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Phase is the lifecycle phase of the VoiceSession orchestrator.
type Phase int

const (
	Idle Phase = iota
	Starting
	Active
	Stopping
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
