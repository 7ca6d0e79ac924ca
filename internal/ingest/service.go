// Package ingest provides the metric ingestion service. It validates
// incoming metric batches, partitions them by subject, and publishes them to
// the message queue for asynchronous evaluation.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"vigil-go/internal/domain"
	"vigil-go/internal/metrics"
	"vigil-go/internal/queue"
)

// Errors returned by the ingest service.
var (
	ErrEmptyBatch    = errors.New("metric batch is empty")
	ErrPublishFailed = errors.New("failed to publish metric batch to queue")
)

// Service handles metric ingestion. It is responsible for:
// - Validating incoming samples
// - Grouping samples by subject so each subject is evaluated in order
// - Publishing batches to the message queue
type Service struct {
	producer queue.Producer
	logger   *slog.Logger
}

// NewService creates a new ingest service.
func NewService(producer queue.Producer, logger *slog.Logger) *Service {
	return &Service{
		producer: producer,
		logger:   logger,
	}
}

// IngestMetrics validates a batch of samples and publishes them for
// evaluation. Samples are partitioned by their subject (user, team, or
// project) so batches for one subject land on the same partition.
func (s *Service) IngestMetrics(ctx context.Context, samples []domain.MetricData) error {
	if len(samples) == 0 {
		return ErrEmptyBatch
	}

	for i := range samples {
		if err := samples[i].Validate(); err != nil {
			return fmt.Errorf("invalid metric at index %d: %w", i, err)
		}
	}
	metrics.MetricsReceivedTotal.Add(float64(len(samples)))

	receivedAt := time.Now().UTC()
	for scope, group := range groupByScope(samples) {
		if err := s.publishBatch(ctx, scope, group, receivedAt); err != nil {
			return err
		}
	}
	return nil
}

// groupByScope splits samples by their subject key.
func groupByScope(samples []domain.MetricData) map[string][]domain.MetricData {
	groups := make(map[string][]domain.MetricData)
	for _, m := range samples {
		key := m.ScopeKey()
		groups[key] = append(groups[key], m)
	}
	return groups
}

// publishBatch serializes one subject's batch onto the queue.
func (s *Service) publishBatch(ctx context.Context, scope string, samples []domain.MetricData, receivedAt time.Time) error {
	batch := domain.MetricBatch{
		Metrics:    samples,
		ReceivedAt: receivedAt,
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to serialize metric batch: %w", err)
	}

	msg := &queue.Message{
		Key:   []byte(partitionKey(scope)),
		Value: payload,
		Headers: map[string]string{
			"scope":        scope,
			"sample_count": strconv.Itoa(len(samples)),
		},
	}

	if err := s.producer.Publish(ctx, msg); err != nil {
		s.logger.Error("failed to publish metric batch", "scope", scope, "error", err)
		return ErrPublishFailed
	}

	metrics.BatchesPublishedTotal.Inc()
	s.logger.Debug("metric batch published",
		"scope", scope,
		"samples", len(samples),
	)
	return nil
}

// partitionKey hashes the subject key so batches for one subject always land
// on the same partition and are evaluated in order.
func partitionKey(scope string) string {
	hash := sha256.Sum256([]byte(scope))
	return hex.EncodeToString(hash[:8])
}
