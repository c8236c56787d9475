// Package config provides the settings snapshot a voice session is started
// with: endpoint credentials, model, audio rates and the OpenClaw gateway.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel    = "models/gemini-2.5-flash-native-audio-preview-12-2025"

	placeholderKey          = "YOUR_GEMINI_API_KEY"
	placeholderHost         = "http://YOUR_MAC_HOSTNAME.local"
	placeholderGatewayToken = "YOUR_OPENCLAW_GATEWAY_TOKEN"
)

var ErrNoAPIKey = errors.New("No API key configured")

type Settings struct {
	APIKey             string        `yaml:"api_key"`
	Endpoint           string        `yaml:"endpoint"`
	Model              string        `yaml:"model"`
	SystemInstruction  string        `yaml:"system_instruction"`
	InputSampleRate    int           `yaml:"input_sample_rate"`
	OutputSampleRate   int           `yaml:"output_sample_rate"`
	VideoFrameInterval time.Duration `yaml:"video_frame_interval"`
	VideoJPEGQuality   int           `yaml:"video_jpeg_quality"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	OpenClaw           OpenClaw      `yaml:"openclaw"`
}

type OpenClaw struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	GatewayToken string `yaml:"gateway_token"`
	HookToken    string `yaml:"hook_token"`
}

// Configured reports whether host and gateway token are set to real values.
func (o OpenClaw) Configured() bool {
	return o.Host != "" && o.Host != placeholderHost &&
		o.GatewayToken != "" && o.GatewayToken != placeholderGatewayToken
}

// BaseURL returns the gateway origin. Host may carry a scheme.
func (o OpenClaw) BaseURL() string {
	host := o.Host
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return fmt.Sprintf("%s:%d", strings.TrimSuffix(host, "/"), o.Port)
}

func Default() Settings {
	return Settings{
		Endpoint:           DefaultEndpoint,
		Model:              DefaultModel,
		SystemInstruction:  defaultInstruction,
		InputSampleRate:    16_000,
		OutputSampleRate:   24_000,
		VideoFrameInterval: time.Second,
		VideoJPEGQuality:   50,
		ConnectTimeout:     15 * time.Second,
		OpenClaw: OpenClaw{
			Port: 18789,
		},
	}
}

// WebsocketURL returns the endpoint URL carrying the API key.
func (s Settings) WebsocketURL() (string, error) {
	if s.APIKey == "" || s.APIKey == placeholderKey {
		return "", ErrNoAPIKey
	}

	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", s.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

const defaultInstruction = `You are a voice assistant with eyes. You see through a camera and hear through a microphone.
Keep answers short and conversational. When the user asks you to do something in the world, such as sending a
message, searching, setting a reminder or remembering a fact, call the execute tool with a complete description
of the task and tell the user the outcome in one sentence.`
