// Package alerting implements the alert service: the stateful layer around
// the rule engine. It is responsible for:
// - Evaluating incoming metric batches against the stored rules
// - Deduplicating alerts per rule and subject within the cooldown window
// - Driving the alert lifecycle (acknowledge, resolve, suppress, escalate)
// - Publishing lifecycle events for downstream consumers
// - Reporting aggregate alert metrics
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"vigil-go/internal/config"
	"vigil-go/internal/domain"
	"vigil-go/internal/event"
	"vigil-go/internal/metrics"
	"vigil-go/internal/rule"
	"vigil-go/internal/store"
)

// ErrInvalidTransition is returned when a lifecycle operation is not allowed
// from the alert's current state.
var ErrInvalidTransition = errors.New("invalid alert state transition")

// Service coordinates rule evaluation, alert persistence, and lifecycle.
type Service struct {
	engine    *rule.Engine
	alertRepo store.AlertRepository
	ruleRepo  store.AlertRuleRepository
	cooldown  store.CooldownStore
	bus       *event.Bus
	cfg       config.AlertingConfig
	logger    *slog.Logger

	// now is injectable for deterministic escalation tests.
	now func() time.Time
}

// NewService creates a new alert service.
func NewService(
	engine *rule.Engine,
	alertRepo store.AlertRepository,
	ruleRepo store.AlertRuleRepository,
	cooldown store.CooldownStore,
	bus *event.Bus,
	cfg config.AlertingConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		engine:    engine,
		alertRepo: alertRepo,
		ruleRepo:  ruleRepo,
		cooldown:  cooldown,
		bus:       bus,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateMetrics runs every enabled rule against the batch and persists the
// alerts that survive deduplication. Returns the alerts actually created.
func (s *Service) EvaluateMetrics(ctx context.Context, samples []domain.MetricData) ([]*domain.Alert, error) {
	timer := prometheus.NewTimer(metrics.EvaluationLatency)
	defer timer.ObserveDuration()

	enabled := true
	rules, err := s.ruleRepo.List(ctx, domain.RuleFilter{Enabled: &enabled})
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	candidates := s.engine.EvaluateRules(samples, rules)
	if len(candidates) == 0 {
		return nil, nil
	}

	rulesByID := make(map[string]*domain.AlertRule, len(rules))
	for _, r := range rules {
		rulesByID[r.ID] = r
	}

	var created []*domain.Alert
	for _, candidate := range candidates {
		cooldown := s.defaultCooldown()
		if r, ok := rulesByID[candidate.RuleID]; ok && r.CooldownMinutes > 0 {
			cooldown = r.Cooldown()
		}

		alert, err := s.createAlert(ctx, candidate, cooldown)
		if err != nil {
			s.logger.Error("failed to create alert",
				"rule_id", candidate.RuleID,
				"error", err,
			)
			continue
		}
		if alert != nil {
			created = append(created, alert)
		}
	}
	return created, nil
}

// EvaluateMLAnomaly creates an alert from an external anomaly detection
// result. Results that are not anomalies are ignored. The returned alert is
// nil when deduplication suppressed it.
func (s *Service) EvaluateMLAnomaly(ctx context.Context, result *domain.MLAnomalyResult, alertCtx domain.AlertContext) (*domain.Alert, error) {
	if result == nil || !result.IsAnomaly {
		return nil, nil
	}

	candidate := s.engine.GenerateMLAnomalyAlert(result, alertCtx)
	return s.createAlert(ctx, candidate, s.defaultCooldown())
}

// createAlert runs the dedup/cooldown gate and persists the alert. Returns
// nil, nil when the alert was deduplicated or the active cap is reached.
func (s *Service) createAlert(ctx context.Context, alert *domain.Alert, cooldown time.Duration) (*domain.Alert, error) {
	dedupKey := alert.DedupKey()

	// An open alert for the same rule and subject absorbs the new trigger.
	existing, err := s.alertRepo.FindOpenByDedupKey(ctx, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check open alerts: %w", err)
	}
	if existing != nil {
		metrics.AlertsDedupedTotal.Inc()
		s.logger.Debug("alert deduplicated against open alert",
			"dedup_key", dedupKey,
			"existing_id", existing.ID,
		)
		return nil, nil
	}

	// The cooldown slot is the atomic gate: of N concurrent evaluations for
	// the same slot, exactly one acquires it.
	acquired, err := s.cooldown.Acquire(ctx, dedupKey, cooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cooldown slot: %w", err)
	}
	if !acquired {
		metrics.AlertsDedupedTotal.Inc()
		s.logger.Debug("alert deduplicated by cooldown", "dedup_key", dedupKey)
		return nil, nil
	}

	active, err := s.alertRepo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active alerts: %w", err)
	}
	if s.cfg.MaxActiveAlerts > 0 && len(active) >= s.cfg.MaxActiveAlerts {
		s.logger.Warn("active alert cap reached, dropping alert",
			"cap", s.cfg.MaxActiveAlerts,
			"dedup_key", dedupKey,
		)
		if err := s.cooldown.Release(ctx, dedupKey); err != nil {
			s.logger.Warn("failed to release cooldown slot", "error", err)
		}
		return nil, nil
	}

	if err := s.alertRepo.Save(ctx, alert); err != nil {
		if relErr := s.cooldown.Release(ctx, dedupKey); relErr != nil {
			s.logger.Warn("failed to release cooldown slot", "error", relErr)
		}
		return nil, fmt.Errorf("failed to persist alert: %w", err)
	}

	metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	s.logger.Info("alert created",
		"alert_id", alert.ID,
		"rule_id", alert.RuleID,
		"severity", alert.Severity,
	)

	s.bus.Publish(event.Event{Type: event.AlertCreated, Alert: alert})
	return alert, nil
}

// defaultCooldown returns the configured fallback cooldown window.
func (s *Service) defaultCooldown() time.Duration {
	return time.Duration(s.cfg.DefaultCooldownMinutes) * time.Minute
}

// GetAlert retrieves an alert by ID.
func (s *Service) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	return s.alertRepo.GetByID(ctx, id)
}

// ListAlerts retrieves alerts matching the filter.
func (s *Service) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	return s.alertRepo.List(ctx, filter)
}

// GetActiveAlerts retrieves all alerts currently in the active state.
func (s *Service) GetActiveAlerts(ctx context.Context) ([]*domain.Alert, error) {
	return s.alertRepo.GetActive(ctx)
}

// AcknowledgeAlert moves an alert to acknowledged and frees its cooldown
// slot. Only active alerts can be acknowledged.
func (s *Service) AcknowledgeAlert(ctx context.Context, id, userID string) (*domain.Alert, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !alert.Acknowledge(userID) {
		return nil, fmt.Errorf("%w: cannot acknowledge alert in status %s", ErrInvalidTransition, alert.Status)
	}
	if err := s.alertRepo.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	s.releaseCooldown(ctx, alert)
	metrics.AlertTransitionsTotal.WithLabelValues(string(domain.AlertStatusAcknowledged)).Inc()
	s.logger.Info("alert acknowledged", "alert_id", id, "user_id", userID)
	s.bus.Publish(event.Event{Type: event.AlertAcknowledged, Alert: alert})
	return alert, nil
}

// ResolveAlert closes an alert and frees its cooldown slot. Allowed from any
// non-resolved state.
func (s *Service) ResolveAlert(ctx context.Context, id, userID string) (*domain.Alert, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !alert.Resolve(userID) {
		return nil, fmt.Errorf("%w: alert already resolved", ErrInvalidTransition)
	}
	if err := s.alertRepo.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	s.releaseCooldown(ctx, alert)
	metrics.AlertTransitionsTotal.WithLabelValues(string(domain.AlertStatusResolved)).Inc()
	s.logger.Info("alert resolved", "alert_id", id, "user_id", userID)
	s.bus.Publish(event.Event{Type: event.AlertResolved, Alert: alert})
	return alert, nil
}

// SuppressAlert mutes an active alert until the given deadline. The alert
// keeps holding its cooldown slot while suppressed.
func (s *Service) SuppressAlert(ctx context.Context, id string, until time.Time) (*domain.Alert, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !alert.Suppress(until) {
		return nil, fmt.Errorf("%w: cannot suppress alert in status %s", ErrInvalidTransition, alert.Status)
	}
	if err := s.alertRepo.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	metrics.AlertTransitionsTotal.WithLabelValues(string(domain.AlertStatusSuppressed)).Inc()
	s.logger.Info("alert suppressed", "alert_id", id, "until", until)
	s.bus.Publish(event.Event{Type: event.AlertSuppressed, Alert: alert})
	return alert, nil
}

// releaseCooldown frees the alert's cooldown slot. Best effort: a failure
// only delays re-alerting until the TTL expires.
func (s *Service) releaseCooldown(ctx context.Context, alert *domain.Alert) {
	if err := s.cooldown.Release(ctx, alert.DedupKey()); err != nil {
		s.logger.Warn("failed to release cooldown slot",
			"dedup_key", alert.DedupKey(),
			"error", err,
		)
	}
}

// RecordFeedback validates and forwards alert quality feedback to the event
// bus for external learning pipelines.
func (s *Service) RecordFeedback(ctx context.Context, feedback *domain.AlertFeedback) error {
	if _, err := s.alertRepo.GetByID(ctx, feedback.AlertID); err != nil {
		return err
	}
	if feedback.SubmittedAt.IsZero() {
		feedback.SubmittedAt = s.now()
	}

	s.logger.Info("alert feedback recorded",
		"alert_id", feedback.AlertID,
		"useful", feedback.Useful,
	)
	s.bus.Publish(event.Event{Type: event.FeedbackReceived, Feedback: feedback})
	return nil
}

// GetAlertMetrics computes the reporting summary over the full alert history.
func (s *Service) GetAlertMetrics(ctx context.Context) (*domain.AlertMetrics, error) {
	history, err := s.alertRepo.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}

	m := &domain.AlertMetrics{
		TotalAlerts:      len(history),
		AlertsByType:     make(map[domain.AlertRuleType]int),
		AlertsBySeverity: make(map[domain.Severity]int),
	}

	var resolved, escalated int
	var resolutionMinutes float64
	for _, a := range history {
		m.AlertsByType[a.Type]++
		m.AlertsBySeverity[a.Severity]++
		if a.ResolvedAt != nil {
			resolved++
			resolutionMinutes += a.ResolvedAt.Sub(a.TriggeredAt).Minutes()
		}
		if a.EscalationLevel > 0 {
			escalated++
		}
	}

	if resolved > 0 {
		m.AverageResolutionMinutes = resolutionMinutes / float64(resolved)
	}
	if len(history) > 0 {
		m.EscalationRate = float64(escalated) / float64(len(history))
	}
	return m, nil
}

// CreateRule validates and stores a new rule.
func (s *Service) CreateRule(ctx context.Context, r *domain.AlertRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CooldownMinutes == 0 {
		r.CooldownMinutes = s.cfg.DefaultCooldownMinutes
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.ruleRepo.Save(ctx, r); err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	s.logger.Info("rule created", "rule_id", r.ID, "name", r.Name)
	return nil
}

// UpdateRule validates and stores changes to an existing rule.
func (s *Service) UpdateRule(ctx context.Context, r *domain.AlertRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	existing, err := s.ruleRepo.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.now()

	if err := s.ruleRepo.Update(ctx, r); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	s.logger.Info("rule updated", "rule_id", r.ID)
	return nil
}

// GetRule retrieves a rule by ID.
func (s *Service) GetRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	return s.ruleRepo.GetByID(ctx, id)
}

// ListRules retrieves rules matching the filter.
func (s *Service) ListRules(ctx context.Context, filter domain.RuleFilter) ([]*domain.AlertRule, error) {
	return s.ruleRepo.List(ctx, filter)
}

// DeleteRule removes a rule. Alerts already created from it are untouched.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := s.ruleRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("rule deleted", "rule_id", id)
	return nil
}

// StartMaintenance runs the periodic sweeps: escalating stale active alerts
// and reactivating alerts whose suppression deadline has passed. Blocks until
// the context is cancelled.
func (s *Service) StartMaintenance(ctx context.Context) {
	interval := s.cfg.EscalationCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("starting alert maintenance sweep", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping alert maintenance sweep")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs one maintenance pass.
func (s *Service) sweep(ctx context.Context) {
	s.escalateStaleAlerts(ctx)
	s.reactivateExpiredSuppressions(ctx)
}

// escalateStaleAlerts bumps alerts that stayed active past the escalation
// timeout. Each elapsed timeout period escalates at most once.
func (s *Service) escalateStaleAlerts(ctx context.Context) {
	if s.cfg.EscalationTimeout <= 0 {
		return
	}

	active, err := s.alertRepo.GetActive(ctx)
	if err != nil {
		s.logger.Error("escalation sweep failed to list active alerts", "error", err)
		return
	}

	now := s.now()
	for _, a := range active {
		deadline := a.TriggeredAt.Add(time.Duration(a.EscalationLevel+1) * s.cfg.EscalationTimeout)
		if now.Before(deadline) {
			continue
		}

		a.Escalate()
		if err := s.alertRepo.Update(ctx, a); err != nil {
			s.logger.Error("failed to persist escalation", "alert_id", a.ID, "error", err)
			continue
		}

		s.logger.Warn("alert escalated",
			"alert_id", a.ID,
			"escalation_level", a.EscalationLevel,
		)
		s.bus.Publish(event.Event{Type: event.AlertEscalated, Alert: a})
	}
}

// reactivateExpiredSuppressions returns suppressed alerts to active once
// their deadline passes.
func (s *Service) reactivateExpiredSuppressions(ctx context.Context) {
	suppressed, err := s.alertRepo.List(ctx, domain.AlertFilter{Status: domain.AlertStatusSuppressed})
	if err != nil {
		s.logger.Error("suppression sweep failed to list alerts", "error", err)
		return
	}

	now := s.now()
	for _, a := range suppressed {
		if a.SuppressedUntil == nil || now.Before(*a.SuppressedUntil) {
			continue
		}
		if !a.Unsuppress() {
			continue
		}
		if err := s.alertRepo.Update(ctx, a); err != nil {
			s.logger.Error("failed to persist unsuppression", "alert_id", a.ID, "error", err)
			continue
		}
		metrics.AlertTransitionsTotal.WithLabelValues(string(domain.AlertStatusActive)).Inc()
		s.logger.Info("alert suppression expired, reactivated", "alert_id", a.ID)
	}
}
