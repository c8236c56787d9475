// Package events defines the typed messages exchanged with the Gemini Live
// BidiGenerateContent endpoint and their JSON wire encoding.
package events

import "github.com/codewandler/voicebridge-go/tool"

// Outbound is a frame sent to the model endpoint.
type Outbound interface {
	outbound()
}

// Event is a decoded inbound server message.
type Event interface {
	event()
}

// FunctionCall is a single tool invocation requested by the model.
type FunctionCall = tool.Call

// AudioChunk is raw 16-bit little endian mono PCM.
type AudioChunk struct {
	Data       []byte
	SampleRate int
}

type VideoFrame struct {
	JPEG []byte
}

type ToolResponse struct {
	Responses []tool.Response
}

// Setup must be the first frame on every connection.
type Setup struct {
	Model             string
	SystemInstruction string
	Tools             []tool.Tool
	Activity          ActivityConfig
	// ThinkingBudget is omitted from the frame when nil.
	ThinkingBudget *int
}

// ActivityConfig controls server side voice activity detection.
type ActivityConfig struct {
	Disabled                 bool
	StartOfSpeechSensitivity string
	EndOfSpeechSensitivity   string
	SilenceDurationMs        int
	PrefixPaddingMs          int
	ActivityHandling         string
	TurnCoverage             string
}

func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		StartOfSpeechSensitivity: "START_SENSITIVITY_HIGH",
		EndOfSpeechSensitivity:   "END_SENSITIVITY_LOW",
		SilenceDurationMs:        500,
		PrefixPaddingMs:          40,
		ActivityHandling:         "START_OF_ACTIVITY_INTERRUPTS",
		TurnCoverage:             "TURN_INCLUDES_ALL_INPUT",
	}
}

func (AudioChunk) outbound()   {}
func (VideoFrame) outbound()   {}
func (ToolResponse) outbound() {}
func (Setup) outbound()        {}

type SetupComplete struct{}

type GoAway struct {
	SecondsLeft int
}

type ToolCall struct {
	Calls []FunctionCall
}

type ToolCallCancellation struct {
	IDs []string
}

type ServerAudio struct {
	Data     []byte
	MIMEType string
}

type ServerText struct {
	Text string
}

type Interrupted struct{}

type TurnComplete struct{}

type InputTranscript struct {
	Text string
}

type OutputTranscript struct {
	Text string
}

func (SetupComplete) event()        {}
func (GoAway) event()               {}
func (ToolCall) event()             {}
func (ToolCallCancellation) event() {}
func (ServerAudio) event()          {}
func (ServerText) event()           {}
func (Interrupted) event()          {}
func (TurnComplete) event()         {}
func (InputTranscript) event()      {}
func (OutputTranscript) event()     {}

// Kind names a frame for logs and metrics.
func Kind(f Outbound) string {
	switch f.(type) {
	case AudioChunk:
		return "audio"
	case VideoFrame:
		return "video"
	case ToolResponse:
		return "tool_response"
	case Setup:
		return "setup"
	default:
		return "unknown"
	}
}

// IsRealtimeInput reports whether f is streamed media, which the endpoint
// only accepts after setup completed.
func IsRealtimeInput(f Outbound) bool {
	switch f.(type) {
	case AudioChunk, VideoFrame:
		return true
	}
	return false
}
