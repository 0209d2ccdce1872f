// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnDuration tracks end-to-end turn processing time.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "Conversation turn processing duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"channel", "status"},
	)

	// TurnsTotal tracks completed turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_total",
			Help: "Total conversation turns completed",
		},
		[]string{"tenant_id", "intent", "resolved"},
	)

	// TurnFailuresTotal tracks turns aborted by pipeline step.
	TurnFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_failures_total",
			Help: "Total conversation turns aborted",
		},
		[]string{"step"},
	)

	// ClassificationStageTotal tracks cascade stage outcomes.
	ClassificationStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_stage_total",
			Help: "Classification cascade stage outcomes",
		},
		[]string{"stage", "outcome"},
	)

	// ProviderDuration tracks classification provider latency.
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classification_provider_duration_seconds",
			Help:    "Classification provider call duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5, 15},
		},
		[]string{"stage"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// WebSocketConnectionsActive tracks open widget and operator sockets.
	WebSocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"kind"},
	)

	// DeliveryFailuresTotal tracks replies that could not be delivered.
	DeliveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_failures_total",
			Help: "Total channel delivery failures",
		},
		[]string{"channel"},
	)

	// EventPublishFailuresTotal tracks dropped analytics events.
	EventPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Total event publish failures",
		},
		[]string{"event"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"tenant_id", "channel"},
	)

	// MessagesTotal tracks total messages appended.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"tenant_id", "role"},
	)

	// SessionCacheTotal tracks session cache lookups.
	SessionCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_total",
			Help: "Session cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurn records a completed turn.
func RecordTurn(tenantID, channel, intent string, resolved bool, duration float64) {
	r := "false"
	if resolved {
		r = "true"
	}
	TurnsTotal.WithLabelValues(tenantID, intent, r).Inc()
	TurnDuration.WithLabelValues(channel, "ok").Observe(duration)
}

// RecordTurnFailure records a turn aborted at the given step.
func RecordTurnFailure(channel, step string, duration float64) {
	TurnFailuresTotal.WithLabelValues(step).Inc()
	TurnDuration.WithLabelValues(channel, "error").Observe(duration)
}

// RecordStage records the outcome of one cascade stage.
func RecordStage(stage, outcome string, duration float64) {
	ClassificationStageTotal.WithLabelValues(stage, outcome).Inc()
	if duration > 0 {
		ProviderDuration.WithLabelValues(stage).Observe(duration)
	}
}

// RecordLLMUsage records token usage for an LLM call.
func RecordLLMUsage(model string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// IncrementWebSockets increments the active socket gauge.
func IncrementWebSockets(kind string) {
	WebSocketConnectionsActive.WithLabelValues(kind).Inc()
}

// DecrementWebSockets decrements the active socket gauge.
func DecrementWebSockets(kind string) {
	WebSocketConnectionsActive.WithLabelValues(kind).Dec()
}
