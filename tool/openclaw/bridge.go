// Package openclaw executes the delegation tool against an OpenClaw gateway
// through its OpenAI compatible chat completions endpoint.
package openclaw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/codewandler/voicebridge-go/config"
	"github.com/codewandler/voicebridge-go/tool"
	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	completionsPath     = "/v1/chat/completions"
	sessionKeyHeader    = "x-openclaw-session-key"
	defaultTimeout      = 120 * time.Second
	defaultCheckTimeout = 5 * time.Second
)

var ErrNotConfigured = errors.New("openclaw not configured")

type StateKind = tool.BackendStateKind

const (
	NotConfigured = tool.BackendNotConfigured
	Checking      = tool.BackendChecking
	Connected     = tool.BackendConnected
	Unreachable   = tool.BackendUnreachable
)

// ConnectionState is the last known reachability of the gateway.
type ConnectionState = tool.BackendState

type Config struct {
	// BaseURL is the gateway origin. Empty means not configured.
	BaseURL      string
	GatewayToken string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// ConfigFrom maps settings to a bridge config. Incomplete settings yield a
// config without BaseURL.
func ConfigFrom(s config.OpenClaw) Config {
	if !s.Configured() {
		return Config{}
	}
	return Config{BaseURL: s.BaseURL(), GatewayToken: s.GatewayToken}
}

// Bridge implements tool.Backend.
type Bridge struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu         sync.Mutex
	state      ConnectionState
	sessionKey string
}

var (
	_ tool.Backend       = (*Bridge)(nil)
	_ tool.StateReporter = (*Bridge)(nil)
)

func New(cfg Config) *Bridge {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{cfg: cfg, client: client, logger: logger.With(slog.String("component", "openclaw"))}
}

func (b *Bridge) State() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s ConnectionState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// CheckConnection probes the gateway. Any response below 500 counts as
// reachable.
func (b *Bridge) CheckConnection(ctx context.Context) error {
	if b.cfg.BaseURL == "" {
		b.setState(ConnectionState{Kind: NotConfigured})
		return ErrNotConfigured
	}
	b.setState(ConnectionState{Kind: Checking})

	ctx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+completionsPath, nil)
	if err != nil {
		b.setState(ConnectionState{Kind: Unreachable, Message: err.Error()})
		return err
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		b.setState(ConnectionState{Kind: Unreachable, Message: err.Error()})
		return &tool.ExecutionError{Kind: tool.ErrorUnreachable, Err: err}
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		b.setState(ConnectionState{Kind: Unreachable, Message: msg})
		return &tool.ExecutionError{Kind: tool.ErrorUnreachable, Err: errors.New(msg)}
	}

	b.setState(ConnectionState{Kind: Connected})
	b.logger.Debug("gateway reachable", slog.Int("status", resp.StatusCode))
	return nil
}

// ResetSession starts a new gateway conversation.
func (b *Bridge) ResetSession(context.Context) error {
	id, err := nanoid.New()
	if err != nil {
		return fmt.Errorf("session key: %w", err)
	}

	b.mu.Lock()
	b.sessionKey = "voicebridge-" + id
	b.mu.Unlock()

	b.logger.Debug("session reset", slog.String("session_key", b.sessionKey))
	return nil
}

func (b *Bridge) SessionKey() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionKey
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (b *Bridge) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	if name != tool.ExecuteName {
		return nil, &tool.ExecutionError{Kind: tool.ErrorFailed, Tool: name, Err: errors.New("unknown tool")}
	}
	task, _ := args["task"].(string)
	if task == "" {
		return nil, &tool.ExecutionError{Kind: tool.ErrorFailed, Tool: name, Err: errors.New("missing task")}
	}
	if b.cfg.BaseURL == "" {
		return nil, &tool.ExecutionError{Kind: tool.ErrorUnreachable, Tool: name, Err: ErrNotConfigured}
	}

	body, err := json.Marshal(chatRequest{
		Model:    "openclaw",
		Messages: []chatMessage{{Role: "user", Content: task}},
	})
	if err != nil {
		return nil, &tool.ExecutionError{Kind: tool.ErrorFailed, Tool: name, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, &tool.ExecutionError{Kind: tool.ErrorFailed, Tool: name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)
	if key := b.SessionKey(); key != "" {
		req.Header.Set(sessionKeyHeader, key)
	}

	b.logger.Debug("execute", slog.String("task", task))
	resp, err := b.client.Do(req)
	if err != nil {
		kind := tool.ErrorUnreachable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = tool.ErrorTimeout
		}
		return nil, &tool.ExecutionError{Kind: kind, Tool: name, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &tool.ExecutionError{Kind: tool.ErrorDenied, Tool: name, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &tool.ExecutionError{Kind: tool.ErrorFailed, Tool: name, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &tool.ExecutionError{Kind: tool.ErrorFailed, Tool: name, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return nil, &tool.ExecutionError{Kind: tool.ErrorFailed, Tool: name, Err: errors.New("empty response")}
	}
	return out.Choices[0].Message.Content, nil
}

func (b *Bridge) authorize(req *http.Request) {
	if b.cfg.GatewayToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.GatewayToken)
	}
}
