package voicebridge

import (
	"log/slog"
	"os"
	"time"

	"github.com/codewandler/voicebridge-go/config"
	"github.com/codewandler/voicebridge-go/events"
	"github.com/codewandler/voicebridge-go/internal/metrics"
	"github.com/codewandler/voicebridge-go/tool"
)

const (
	ApiKeyEnvVarNameShort = "GEMINI_API_KEY"
	ApiKeyEnvVarNameLong  = "GOOGLE_API_KEY"

	DefaultStatusInterval = 100 * time.Millisecond
)

type sessionConfig struct {
	logger         *slog.Logger
	metrics        *metrics.Collector
	settings       config.Provider
	apiKey         string
	endpointURL    string
	tools          []tool.Tool
	activity       events.ActivityConfig
	thinkingBudget *int
	connectTimeout time.Duration
	statusInterval time.Duration
	uplinkDepth    int
}

type Option func(*sessionConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *sessionConfig) {
		c.logger = logger
	}
}

func WithDefaultLogger() Option {
	return WithLogger(slog.Default())
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *sessionConfig) {
		c.metrics = m
	}
}

// WithSettings sets the provider a snapshot is taken from on every Start.
func WithSettings(p config.Provider) Option {
	return func(c *sessionConfig) {
		c.settings = p
	}
}

// WithKey overrides the API key of the settings snapshot.
func WithKey(apiKey string) Option {
	return func(c *sessionConfig) {
		c.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) Option {
	return func(c *sessionConfig) {
		for _, name := range vars {
			if k := os.Getenv(name); k != "" {
				c.apiKey = k
				return
			}
		}
	}
}

// WithEndpointURL connects to url as is instead of the endpoint derived from
// the settings.
func WithEndpointURL(url string) Option {
	return func(c *sessionConfig) {
		c.endpointURL = url
	}
}

func WithTools(tools ...tool.Tool) Option {
	return func(c *sessionConfig) {
		c.tools = tools
	}
}

func WithActivityConfig(a events.ActivityConfig) Option {
	return func(c *sessionConfig) {
		c.activity = a
	}
}

// WithThinkingBudget sets the model thinking budget. A negative budget omits
// the thinking config from setup.
func WithThinkingBudget(budget int) Option {
	return func(c *sessionConfig) {
		if budget < 0 {
			c.thinkingBudget = nil
			return
		}
		c.thinkingBudget = &budget
	}
}

// WithConnectTimeout overrides the handshake timeout of the settings.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *sessionConfig) {
		c.connectTimeout = d
	}
}

// WithStatusInterval sets how often the status is republished. Non-positive
// values keep the current interval.
func WithStatusInterval(d time.Duration) Option {
	return func(c *sessionConfig) {
		if d > 0 {
			c.statusInterval = d
		}
	}
}

func WithOptions(opts ...Option) Option {
	return func(c *sessionConfig) {
		for _, opt := range opts {
			opt(c)
		}
	}
}

func withDefaults() Option {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithSettings(config.Static(config.Default())),
		WithTools(tool.Execute()),
		WithActivityConfig(events.DefaultActivityConfig()),
		WithThinkingBudget(0),
		WithStatusInterval(DefaultStatusInterval),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
		func(c *sessionConfig) { c.uplinkDepth = 32 },
	)
}
