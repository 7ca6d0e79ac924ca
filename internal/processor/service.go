// Package processor consumes metric batches from the queue and feeds them to
// the alert service for rule evaluation. It is the asynchronous half of the
// ingestion pipeline: ingest publishes, processor evaluates.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"

	"vigil-go/internal/alerting"
	"vigil-go/internal/domain"
	"vigil-go/internal/metrics"
	"vigil-go/internal/queue"
)

// Service processes metric batches from the queue.
type Service struct {
	consumer queue.Consumer
	alerts   *alerting.Service
	logger   *slog.Logger
}

// NewService creates a new processor service.
func NewService(consumer queue.Consumer, alerts *alerting.Service, logger *slog.Logger) *Service {
	return &Service{
		consumer: consumer,
		alerts:   alerts,
		logger:   logger,
	}
}

// Start begins consuming batches from the queue. This is a blocking call
// that runs until the context is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting processor service")
	return s.consumer.Start(ctx, s.handleMessage)
}

// handleMessage evaluates one metric batch.
func (s *Service) handleMessage(ctx context.Context, msg *queue.Message) error {
	var batch domain.MetricBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		// Malformed batches are dropped, not retried.
		s.logger.Error("failed to deserialize metric batch", "error", err)
		metrics.BatchesProcessedTotal.WithLabelValues("malformed").Inc()
		return nil
	}
	if len(batch.Metrics) == 0 {
		metrics.BatchesProcessedTotal.WithLabelValues("empty").Inc()
		return nil
	}

	created, err := s.alerts.EvaluateMetrics(ctx, batch.Metrics)
	if err != nil {
		s.logger.Error("failed to evaluate metric batch",
			"scope", msg.Headers["scope"],
			"error", err,
		)
		metrics.BatchesProcessedTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.BatchesProcessedTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("metric batch evaluated",
		"scope", msg.Headers["scope"],
		"samples", len(batch.Metrics),
		"alerts", len(created),
	)
	return nil
}

// Stop gracefully stops the processor service.
func (s *Service) Stop() error {
	s.logger.Info("stopping processor service")
	return s.consumer.Close()
}
