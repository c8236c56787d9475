// Package metrics collects prometheus metrics for voice sessions.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without guarding every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets are tuned for speech-to-first-audio latencies (seconds).
var latencyBuckets = []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10}

type Collector struct {
	registry *prometheus.Registry

	turnLatency    prometheus.Histogram
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	framesSent     *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	disconnects    *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewCollector registers all instruments on a fresh registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		turnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "Time from end of user speech to first model audio",
			Buckets:   latencyBuckets,
		}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool name and outcome",
		}, []string{"tool", "status"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool backend execution time",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"tool"}),
		framesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound frames written to the socket by kind",
		}, []string{"kind"}),
		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped before send by reason",
		}, []string{"reason"}),
		disconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Session terminations by cause",
		}, []string{"cause"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live voice sessions",
		}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveTurnLatency(d time.Duration) {
	if c == nil {
		return
	}
	c.turnLatency.Observe(d.Seconds())
}

func (c *Collector) RecordToolCall(tool, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
	if d > 0 {
		c.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}

func (c *Collector) FrameSent(kind string) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(kind).Inc()
}

func (c *Collector) FrameDropped(reason string) {
	if c == nil {
		return
	}
	c.framesDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) Disconnect(cause string) {
	if c == nil {
		return
	}
	c.disconnects.WithLabelValues(cause).Inc()
}

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}
