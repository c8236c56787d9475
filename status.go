package voicebridge

import (
	"context"

	"github.com/codewandler/voicebridge-go/tool"
)

// Status is the aggregated, read-only view of a VoiceSession. It is
// republished on a fixed interval and may be up to one interval stale.
type Status struct {
	SessionID        string            `json:"session_id,omitempty"`
	Phase            Phase             `json:"phase"`
	Connection       ConnectionState   `json:"connection"`
	ModelSpeaking    bool              `json:"model_speaking"`
	ToolCall         tool.Status       `json:"tool_call"`
	Backend          tool.BackendState `json:"backend"`
	BackendReachable bool              `json:"backend_reachable"`
	BackendError     string            `json:"backend_error,omitempty"`
	InputTranscript  string            `json:"input_transcript,omitempty"`
	OutputTranscript string            `json:"output_transcript,omitempty"`
	LastError        string            `json:"last_error,omitempty"`
}

func (v *VoiceSession) Status() Status {
	if st := v.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

// Subscribe returns a channel carrying the latest status. A slow reader only
// misses intermediate values. The channel is closed when ctx is done.
func (v *VoiceSession) Subscribe(ctx context.Context) <-chan Status {
	ch := make(chan Status, 1)
	ch <- v.Status()

	v.subsMu.Lock()
	v.subs[ch] = struct{}{}
	v.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		v.subsMu.Lock()
		delete(v.subs, ch)
		close(ch)
		v.subsMu.Unlock()
	}()
	return ch
}

func (v *VoiceSession) setStatus(st Status) {
	v.status.Store(&st)

	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	for ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (v *VoiceSession) snapshot(s *session) Status {
	v.mu.Lock()
	phase := v.phase
	v.mu.Unlock()

	backendErr := s.backendError()
	return Status{
		SessionID:        s.id,
		Phase:            phase,
		Connection:       s.ctrl.State(),
		ModelSpeaking:    s.ctrl.IsModelSpeaking(),
		ToolCall:         s.router.Status(),
		Backend:          v.backendState(backendErr),
		BackendReachable: backendErr == "",
		BackendError:     backendErr,
		InputTranscript:  s.ctrl.InputTranscript(),
		OutputTranscript: s.ctrl.OutputTranscript(),
	}
}

// idleStatus is published while no session components exist.
func (v *VoiceSession) idleStatus(phase Phase, lastErr string) Status {
	st := Status{Phase: phase, LastError: lastErr}
	if r, ok := v.backend.(tool.StateReporter); ok {
		st.Backend = r.State()
	}
	return st
}

// backendState asks the backend when it tracks its own state and otherwise
// derives it from the last connection check.
func (v *VoiceSession) backendState(checkErr string) tool.BackendState {
	if r, ok := v.backend.(tool.StateReporter); ok {
		return r.State()
	}
	if checkErr != "" {
		return tool.BackendState{Kind: tool.BackendUnreachable, Message: checkErr}
	}
	return tool.BackendState{Kind: tool.BackendConnected}
}
