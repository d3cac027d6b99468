package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the relay.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Gateway Metrics
	gatewayCallsTotal   *prometheus.CounterVec
	gatewayCallDuration *prometheus.HistogramVec

	// Pipeline Metrics
	stageDuration   *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	keySourcesTotal *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		// Gateway Metrics
		gatewayCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_calls_total",
				Help: "Total number of gateway JSON-RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		gatewayCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_call_duration_seconds",
				Help:    "Duration of gateway JSON-RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		// Pipeline Metrics
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_stage_duration_seconds",
				Help:    "Duration of relay pipeline stages in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"stage", "status"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_runs_total",
				Help: "Total number of relay pipeline runs by network and outcome",
			},
			[]string{"network", "outcome", "error_kind"},
		),
		keySourcesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_key_sources_total",
				Help: "Total number of signing keys resolved, by source",
			},
			[]string{"source"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Gateway metric helpers

// RecordGatewayCall records a gateway JSON-RPC call with duration.
func (m *Metrics) RecordGatewayCall(method, status string, duration float64) {
	m.gatewayCallsTotal.WithLabelValues(method, status).Inc()
	m.gatewayCallDuration.WithLabelValues(method).Observe(duration)
}

// Pipeline metric helpers

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(stage string, err error, duration float64) {
	m.stageDuration.WithLabelValues(stage, errorStatus(err)).Observe(duration)
}

// RecordRun records the terminal outcome of a pipeline run.
// errorKind is empty for successful runs.
func (m *Metrics) RecordRun(network, outcome, errorKind string) {
	m.runsTotal.WithLabelValues(network, outcome, errorKind).Inc()
}

// RecordKeySource records which key source produced the signing key.
func (m *Metrics) RecordKeySource(source string) {
	m.keySourcesTotal.WithLabelValues(source).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func errorStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
