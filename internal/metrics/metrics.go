// Package metrics provides Prometheus metrics for Vigil.
// It tracks metric ingestion, rule evaluation, alert lifecycle transitions,
// and notification delivery outcomes to measure alerting SLOs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "vigil"
)

// Ingestion metrics track the metric feed pipeline.
var (
	// MetricsReceivedTotal counts metric samples received by the ingest API.
	MetricsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_received_total",
			Help:      "Total number of metric samples received by the ingest API",
		},
	)

	// BatchesPublishedTotal counts metric batches published to the queue.
	BatchesPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_published_total",
			Help:      "Total number of metric batches published to the evaluation queue",
		},
	)

	// BatchesProcessedTotal counts batches consumed by the processor.
	BatchesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_processed_total",
			Help:      "Total number of metric batches processed",
		},
		[]string{"result"},
	)
)

// Evaluation metrics track the rule engine and alert service.
var (
	// AlertsCreatedTotal counts alerts created, by type and severity.
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Total number of alerts created",
		},
		[]string{"type", "severity"},
	)

	// AlertsDedupedTotal counts candidate alerts suppressed by cooldown.
	AlertsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_deduped_total",
			Help:      "Total number of candidate alerts suppressed by cooldown or dedup",
		},
	)

	// AlertTransitionsTotal counts lifecycle transitions by target state.
	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Total number of alert lifecycle transitions",
		},
		[]string{"to"},
	)

	// EvaluationLatency measures one EvaluateMetrics pass.
	EvaluationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_latency_seconds",
			Help:      "Time to evaluate a metric batch against all enabled rules",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Notification metrics track delivery outcomes.
var (
	// NotificationsSentTotal counts provider sends by channel and result.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of notification sends by channel and result",
		},
		[]string{"channel", "result"},
	)

	// DeliveryRetriesTotal counts retry attempts by outcome.
	DeliveryRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_retries_total",
			Help:      "Total number of delivery retry attempts",
		},
		[]string{"result"},
	)

	// DeliveriesExhaustedTotal counts deliveries abandoned after max retries.
	DeliveriesExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_exhausted_total",
			Help:      "Total number of deliveries that exhausted their retries",
		},
	)

	// DeliveryLatency measures a single provider send call.
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_seconds",
			Help:      "Time for a single provider send call",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)
)

// Event bus metrics.
var (
	// EventsPublishedTotal counts events published on the internal bus.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published on the internal bus",
		},
		[]string{"event_type"},
	)

	// EventsDroppedTotal counts events dropped due to slow subscribers.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of bus events dropped because a subscriber was full",
		},
		[]string{"event_type"},
	)
)

// In-app metrics.
var (
	// WebsocketConnections gauges currently connected in-app clients.
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Number of currently connected in-app websocket clients",
		},
	)
)
