package engine

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daryltucker/agent-bench/internal/model"
)

// Turn outcome labels.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
)

// Metrics holds the benchmark counters on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	turns           *prometheus.CounterVec
	toolInvocations *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	storeFailures   prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbench_turns_total",
			Help: "Conversation turns by provider and outcome.",
		}, []string{"provider", "outcome"}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbench_tool_invocations_total",
			Help: "Tool directives executed by provider, kind and success.",
		}, []string{"provider", "kind", "success"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentbench_provider_request_duration_seconds",
			Help:    "Latency of individual provider calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 90},
		}, []string{"provider"}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentbench_store_failures_total",
			Help: "Session store writes that failed and were skipped.",
		}),
	}
	m.registry.MustRegister(m.turns, m.toolInvocations, m.requestDuration, m.storeFailures)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeTurn(id model.ProviderID, outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(string(id), outcome).Inc()
}

func (m *Metrics) observeTool(id model.ProviderID, r model.ToolResult) {
	if m == nil {
		return
	}
	m.toolInvocations.WithLabelValues(string(id), string(r.Kind), strconv.FormatBool(r.Success)).Inc()
}

func (m *Metrics) observeRequest(id model.ProviderID, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(string(id)).Observe(d.Seconds())
}

func (m *Metrics) storeFailed() {
	if m == nil {
		return
	}
	m.storeFailures.Inc()
}
