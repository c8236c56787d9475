package events

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codewandler/voicebridge-go/tool"
)

// ── outgoing wire shapes ──────────────────────────────────────────────────────

type setupMessage struct {
	Setup setupBody `json:"setup"`
}

type setupBody struct {
	Model                    string              `json:"model"`
	GenerationConfig         generationConfig    `json:"generationConfig"`
	SystemInstruction        *content            `json:"systemInstruction,omitempty"`
	Tools                    []toolSet           `json:"tools,omitempty"`
	RealtimeInputConfig      realtimeInputConfig `json:"realtimeInputConfig"`
	InputAudioTranscription  struct{}            `json:"inputAudioTranscription"`
	OutputAudioTranscription struct{}            `json:"outputAudioTranscription"`
}

type generationConfig struct {
	ResponseModalities []string        `json:"responseModalities"`
	ThinkingConfig     *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type content struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type toolSet struct {
	FunctionDeclarations []tool.Tool `json:"functionDeclarations"`
}

type realtimeInputConfig struct {
	AutomaticActivityDetection activityDetection `json:"automaticActivityDetection"`
	ActivityHandling           string            `json:"activityHandling,omitempty"`
	TurnCoverage               string            `json:"turnCoverage,omitempty"`
}

type activityDetection struct {
	Disabled                 bool   `json:"disabled"`
	StartOfSpeechSensitivity string `json:"startOfSpeechSensitivity,omitempty"`
	EndOfSpeechSensitivity   string `json:"endOfSpeechSensitivity,omitempty"`
	SilenceDurationMs        int    `json:"silenceDurationMs,omitempty"`
	PrefixPaddingMs          int    `json:"prefixPaddingMs,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio *blob `json:"audio,omitempty"`
	Video *blob `json:"video,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolResponseMessage struct {
	ToolResponse toolResponseBody `json:"toolResponse"`
}

type toolResponseBody struct {
	FunctionResponses []tool.Response `json:"functionResponses"`
}

// Encode renders f as a JSON text frame.
func Encode(f Outbound) ([]byte, error) {
	switch x := f.(type) {
	case AudioChunk:
		return json.Marshal(realtimeInputMessage{RealtimeInput: realtimeInput{Audio: &blob{
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", x.SampleRate),
			Data:     base64.StdEncoding.EncodeToString(x.Data),
		}}})
	case VideoFrame:
		return json.Marshal(realtimeInputMessage{RealtimeInput: realtimeInput{Video: &blob{
			MIMEType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(x.JPEG),
		}}})
	case ToolResponse:
		responses := x.Responses
		if responses == nil {
			responses = []tool.Response{}
		}
		return json.Marshal(toolResponseMessage{ToolResponse: toolResponseBody{FunctionResponses: responses}})
	case Setup:
		return json.Marshal(setupMessage{Setup: newSetupBody(x)})
	default:
		return nil, fmt.Errorf("unsupported frame %T", f)
	}
}

func newSetupBody(s Setup) setupBody {
	body := setupBody{
		Model: s.Model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		RealtimeInputConfig: realtimeInputConfig{
			AutomaticActivityDetection: activityDetection{
				Disabled:                 s.Activity.Disabled,
				StartOfSpeechSensitivity: s.Activity.StartOfSpeechSensitivity,
				EndOfSpeechSensitivity:   s.Activity.EndOfSpeechSensitivity,
				SilenceDurationMs:        s.Activity.SilenceDurationMs,
				PrefixPaddingMs:          s.Activity.PrefixPaddingMs,
			},
			ActivityHandling: s.Activity.ActivityHandling,
			TurnCoverage:     s.Activity.TurnCoverage,
		},
	}
	if s.ThinkingBudget != nil {
		body.GenerationConfig.ThinkingConfig = &thinkingConfig{ThinkingBudget: *s.ThinkingBudget}
	}
	if s.SystemInstruction != "" {
		body.SystemInstruction = &content{Parts: []textPart{{Text: s.SystemInstruction}}}
	}
	if len(s.Tools) > 0 {
		body.Tools = []toolSet{{FunctionDeclarations: s.Tools}}
	}
	return body
}

// ── incoming wire shapes ──────────────────────────────────────────────────────

type serverMessage struct {
	SetupComplete        json.RawMessage   `json:"setupComplete"`
	GoAway               *goAway           `json:"goAway"`
	ToolCall             *toolCallBody     `json:"toolCall"`
	ToolCallCancellation *toolCancellation `json:"toolCallCancellation"`
	ServerContent        *serverContent    `json:"serverContent"`
}

type goAway struct {
	TimeLeft json.RawMessage `json:"timeLeft"`
}

type toolCallBody struct {
	FunctionCalls []tool.Call `json:"functionCalls"`
}

type toolCancellation struct {
	IDs []string `json:"ids"`
}

type serverContent struct {
	Interrupted         bool           `json:"interrupted"`
	ModelTurn           *modelTurn     `json:"modelTurn"`
	TurnComplete        bool           `json:"turnComplete"`
	InputTranscription  *transcription `json:"inputTranscription"`
	OutputTranscription *transcription `json:"outputTranscription"`
}

type modelTurn struct {
	Parts []serverPart `json:"parts"`
}

type serverPart struct {
	Text       *string `json:"text"`
	InlineData *blob   `json:"inlineData"`
}

type transcription struct {
	Text string `json:"text"`
}

// Decode parses a server frame. Only the first matching top-level key is
// considered, in the order setupComplete, goAway, toolCall,
// toolCallCancellation, serverContent. Malformed or unknown frames decode to
// nil. A serverContent frame yields one event per present sub-field, ordered
// interrupted, model turn parts, turnComplete, input then output transcription.
func Decode(data []byte) []Event {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}

	switch {
	case msg.SetupComplete != nil:
		return []Event{SetupComplete{}}
	case msg.GoAway != nil:
		return []Event{GoAway{SecondsLeft: parseTimeLeft(msg.GoAway.TimeLeft)}}
	case msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0:
		return []Event{ToolCall{Calls: msg.ToolCall.FunctionCalls}}
	case msg.ToolCallCancellation != nil:
		return []Event{ToolCallCancellation{IDs: msg.ToolCallCancellation.IDs}}
	case msg.ServerContent != nil:
		return decodeServerContent(msg.ServerContent)
	}
	return nil
}

func decodeServerContent(sc *serverContent) []Event {
	var out []Event

	if sc.Interrupted {
		out = append(out, Interrupted{})
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			switch {
			case p.InlineData != nil:
				if !strings.HasPrefix(p.InlineData.MIMEType, "audio/pcm") {
					continue
				}
				audio, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil || len(audio) == 0 {
					continue
				}
				out = append(out, ServerAudio{Data: audio, MIMEType: p.InlineData.MIMEType})
			case p.Text != nil:
				out = append(out, ServerText{Text: *p.Text})
			}
		}
	}

	if sc.TurnComplete {
		out = append(out, TurnComplete{})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		out = append(out, InputTranscript{Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		out = append(out, OutputTranscript{Text: sc.OutputTranscription.Text})
	}
	return out
}

// parseTimeLeft accepts both {"seconds": N} and the protobuf duration string "Ns".
func parseTimeLeft(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var obj struct {
		Seconds json.Number `json:"seconds"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if n, err := obj.Seconds.Float64(); err == nil {
			return int(n)
		}
		return 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := time.ParseDuration(s); err == nil {
			return int(d.Seconds())
		}
	}
	return 0
}
