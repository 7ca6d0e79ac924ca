package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"vigil-go/internal/alerting"
	"vigil-go/internal/config"
	"vigil-go/internal/domain"
	"vigil-go/internal/event"
	"vigil-go/internal/queue"
	memqueue "vigil-go/internal/queue/memory"
	"vigil-go/internal/rule"
	"vigil-go/internal/store/memory"
)

func queueMessage(payload []byte) *queue.Message {
	return &queue.Message{
		Key:     []byte("user-1"),
		Value:   payload,
		Headers: map[string]string{"scope": "user-1"},
	}
}

func newProcessorFixture(t *testing.T) (*Service, *alerting.Service, *memqueue.Queue) {
	t.Helper()
	logger := slog.Default()
	alerts := alerting.NewService(
		rule.NewEngine(logger),
		memory.NewAlertRepository(),
		memory.NewRuleRepository(),
		memory.NewCooldownStore(),
		event.NewBus(logger),
		config.AlertingConfig{DefaultCooldownMinutes: 30, MaxActiveAlerts: 1000},
		logger,
	)
	q := memqueue.NewQueue(16)
	return NewService(q, alerts, logger), alerts, q
}

func TestProcessorEvaluatesBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, alerts, q := newProcessorFixture(t)
	defer q.Close()

	err := alerts.CreateRule(ctx, &domain.AlertRule{
		Name:     "low focus",
		Type:     domain.RuleTypeFlowInterruption,
		Severity: domain.SeverityMedium,
		Enabled:  true,
		Conditions: []domain.AlertCondition{
			{
				MetricType:        "focus_time",
				Operator:          domain.OperatorLT,
				Threshold:         2,
				TimeWindowMinutes: 60,
				Aggregation:       domain.AggregationAvg,
			},
		},
		CooldownMinutes: 30,
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	payload, err := json.Marshal(domain.MetricBatch{
		Metrics: []domain.MetricData{
			{Type: "focus_time", Value: 0.5, Timestamp: time.Now().UTC(), UserID: "user-1"},
		},
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := q.Publish(ctx, queueMessage(payload)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	go svc.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		active, err := alerts.GetActiveAlerts(ctx)
		if err != nil {
			t.Fatalf("GetActiveAlerts: %v", err)
		}
		if len(active) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no alert created from consumed batch")
}

func TestProcessorSkipsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, alerts, q := newProcessorFixture(t)
	defer q.Close()

	if err := q.Publish(ctx, queueMessage([]byte("not json"))); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	go svc.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	active, err := alerts.GetActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("GetActiveAlerts: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("alerts from malformed batch: %d", len(active))
	}
	if q.Len() != 0 {
		t.Errorf("malformed message still queued")
	}
}
