package voicebridge

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codewandler/voicebridge-go/events"
)

// ControllerHooks are the listeners a SessionController notifies. Every hook
// is optional and is invoked without the controller lock held.
type ControllerHooks struct {
	OnAudio                func(data []byte)
	OnInterrupted          func()
	OnTurnComplete         func()
	OnInputTranscript      func(text string)
	OnOutputTranscript     func(text string)
	OnToolCall             func(calls []events.FunctionCall)
	OnToolCallCancellation func(ids []string)
	OnDisconnected         func(reason string)
	OnTurnLatency          func(d time.Duration)
}

// SessionController tracks connection phase, turn state and transcripts from
// the events of a single connection.
type SessionController struct {
	hooks  ControllerHooks
	logger *slog.Logger
	now    func() time.Time

	mu                sync.Mutex
	state             ConnectionState
	modelSpeaking     bool
	input             strings.Builder
	output            strings.Builder
	lastUserSpeechEnd time.Time
	latencyLogged     bool
}

func NewSessionController(hooks ControllerHooks, logger *slog.Logger) *SessionController {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionController{
		hooks:  hooks,
		logger: logger,
		now:    time.Now,
	}
}

// HandleState applies a transition reported by the connection. Forward
// transitions must follow Connecting, SettingUp in order; Ready is only
// reached through setupComplete. Disconnected and Error are accepted from any
// state.
func (c *SessionController) HandleState(next ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch next.Phase {
	case Disconnected, Error:
		c.state = next
		c.modelSpeaking = false
	case Connecting, SettingUp:
		if next.Phase != c.state.Phase+1 {
			c.logger.Debug("ignoring state transition", slog.String("from", c.state.String()), slog.String("to", next.String()))
			return
		}
		c.state = next
	}
}

func (c *SessionController) HandleDisconnect(reason string) {
	if c.hooks.OnDisconnected != nil {
		c.hooks.OnDisconnected(reason)
	}
}

func (c *SessionController) HandleEvent(evt events.Event) {
	switch e := evt.(type) {
	case events.SetupComplete:
		c.handleSetupComplete()
	case events.GoAway:
		c.handleGoAway(e)
	case events.ToolCall:
		if c.isReady() && c.hooks.OnToolCall != nil {
			c.hooks.OnToolCall(e.Calls)
		}
	case events.ToolCallCancellation:
		if c.isReady() && c.hooks.OnToolCallCancellation != nil {
			c.hooks.OnToolCallCancellation(e.IDs)
		}
	case events.ServerAudio:
		c.handleAudio(e)
	case events.ServerText:
		c.logger.Debug("model text", slog.String("text", e.Text))
	case events.Interrupted:
		c.handleInterrupted()
	case events.TurnComplete:
		c.handleTurnComplete()
	case events.InputTranscript:
		c.handleInputTranscript(e.Text)
	case events.OutputTranscript:
		c.handleOutputTranscript(e.Text)
	}
}

func (c *SessionController) handleSetupComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != SettingUp {
		c.logger.Debug("unexpected setupComplete", slog.String("state", c.state.String()))
		return
	}
	c.state = ConnectionState{Phase: Ready}
	c.logger.Info("session ready")
}

func (c *SessionController) handleGoAway(e events.GoAway) {
	c.mu.Lock()
	if c.state.Phase == Disconnected || c.state.Phase == Error {
		c.mu.Unlock()
		return
	}
	c.state = ConnectionState{Phase: Disconnected}
	c.modelSpeaking = false
	c.mu.Unlock()

	reason := fmt.Sprintf("Server closing (time left: %ds)", e.SecondsLeft)
	c.logger.Warn("server going away", slog.Int("seconds_left", e.SecondsLeft))
	if c.hooks.OnDisconnected != nil {
		c.hooks.OnDisconnected(reason)
	}
}

func (c *SessionController) handleAudio(e events.ServerAudio) {
	c.mu.Lock()
	if c.state.Phase != Ready {
		c.mu.Unlock()
		return
	}

	var (
		latency       time.Duration
		reportLatency bool
	)
	if !c.modelSpeaking {
		c.modelSpeaking = true
		if !c.latencyLogged && !c.lastUserSpeechEnd.IsZero() {
			latency = c.now().Sub(c.lastUserSpeechEnd)
			c.latencyLogged = true
			reportLatency = true
		}
	}
	c.mu.Unlock()

	if reportLatency {
		c.logger.Debug("turn latency", slog.Duration("latency", latency))
		if c.hooks.OnTurnLatency != nil {
			c.hooks.OnTurnLatency(latency)
		}
	}
	if c.hooks.OnAudio != nil {
		c.hooks.OnAudio(e.Data)
	}
}

func (c *SessionController) handleInterrupted() {
	c.mu.Lock()
	if c.state.Phase != Ready {
		c.mu.Unlock()
		return
	}
	c.modelSpeaking = false
	c.mu.Unlock()

	c.logger.Debug("interrupted")
	if c.hooks.OnInterrupted != nil {
		c.hooks.OnInterrupted()
	}
}

func (c *SessionController) handleTurnComplete() {
	c.mu.Lock()
	if c.state.Phase != Ready {
		c.mu.Unlock()
		return
	}
	c.modelSpeaking = false
	c.input.Reset()
	c.latencyLogged = false
	c.mu.Unlock()

	if c.hooks.OnTurnComplete != nil {
		c.hooks.OnTurnComplete()
	}
}

// handleInputTranscript starts a new output transcript. The output buffer is
// not cleared on turnComplete.
func (c *SessionController) handleInputTranscript(text string) {
	c.mu.Lock()
	if c.state.Phase != Ready {
		c.mu.Unlock()
		return
	}
	c.input.WriteString(text)
	c.lastUserSpeechEnd = c.now()
	c.output.Reset()
	c.mu.Unlock()

	c.logger.Debug("user", slog.String("text", text))
	if c.hooks.OnInputTranscript != nil {
		c.hooks.OnInputTranscript(text)
	}
}

func (c *SessionController) handleOutputTranscript(text string) {
	c.mu.Lock()
	if c.state.Phase != Ready {
		c.mu.Unlock()
		return
	}
	c.output.WriteString(text)
	c.mu.Unlock()

	c.logger.Debug("model", slog.String("text", text))
	if c.hooks.OnOutputTranscript != nil {
		c.hooks.OnOutputTranscript(text)
	}
}

func (c *SessionController) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == Ready
}

func (c *SessionController) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SessionController) IsModelSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelSpeaking
}

func (c *SessionController) InputTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input.String()
}

func (c *SessionController) OutputTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.String()
}
