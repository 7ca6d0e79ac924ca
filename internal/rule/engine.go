// Package rule implements the alert rule engine: pure evaluation of alerting
// rules against windows of metric samples. The engine aggregates samples over
// each condition's time window, tests thresholds, classifies severity, and
// drafts alert content and recommendations. It never persists anything and
// never panics past its public surface.
package rule

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil-go/internal/domain"
)

// Severity classification boundaries, as fractional deviation from the
// threshold. Inclusive at the lower edge of each band.
const (
	deviationCritical = 0.50
	deviationHigh     = 0.30
	deviationMedium   = 0.10
)

// ML anomaly confidence boundaries for severity classification.
const (
	confidenceCritical = 0.90
	confidenceHigh     = 0.70
	confidenceMedium   = 0.50
)

// maxContributingFactors bounds how many anomaly factors make it into the
// root-cause recommendation.
const maxContributingFactors = 3

// Engine evaluates alert rules against metric samples.
type Engine struct {
	logger *slog.Logger

	// now is injectable for deterministic window tests.
	now func() time.Time
}

// NewEngine creates a rule engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateCondition tests a single condition against the given samples.
// Samples outside the condition's metric type or time window are ignored.
// An empty window, an unknown operator, or an unknown aggregation all
// evaluate to false rather than erroring.
func (e *Engine) EvaluateCondition(cond *domain.AlertCondition, metrics []domain.MetricData) bool {
	value, ok := e.aggregate(cond, metrics)
	if !ok {
		return false
	}
	return compare(value, cond.Operator, cond.Threshold)
}

// aggregate filters samples to the condition's metric type and window and
// reduces them. Returns false if no samples remain or the aggregation is
// unknown.
func (e *Engine) aggregate(cond *domain.AlertCondition, metrics []domain.MetricData) (float64, bool) {
	cutoff := e.now().Add(-cond.TimeWindow())

	var values []float64
	for _, m := range metrics {
		if m.Type != cond.MetricType || m.Timestamp.Before(cutoff) {
			continue
		}
		values = append(values, m.Value)
	}
	if len(values) == 0 {
		return 0, false
	}

	switch cond.Aggregation {
	case domain.AggregationAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), true
	case domain.AggregationSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum, true
	case domain.AggregationMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, true
	case domain.AggregationMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, true
	case domain.AggregationCount:
		return float64(len(values)), true
	default:
		return 0, false
	}
}

// compare applies a condition operator. Unknown operators evaluate to false.
func compare(value float64, op domain.ConditionOperator, threshold float64) bool {
	switch op {
	case domain.OperatorGT:
		return value > threshold
	case domain.OperatorGTE:
		return value >= threshold
	case domain.OperatorLT:
		return value < threshold
	case domain.OperatorLTE:
		return value <= threshold
	case domain.OperatorEQ:
		return value == threshold
	case domain.OperatorNE:
		return value != threshold
	default:
		return false
	}
}

// EvaluateRule tests all of a rule's conditions (ANDed) and drafts an alert
// when every one holds. Returns nil when the rule is disabled, has no
// conditions, has no relevant samples, or any condition fails.
func (e *Engine) EvaluateRule(rule *domain.AlertRule, metrics []domain.MetricData) *domain.Alert {
	if !rule.Enabled || len(rule.Conditions) == 0 {
		return nil
	}

	relevant := e.relevantMetrics(rule, metrics)
	if len(relevant) == 0 {
		return nil
	}

	// Aggregate once per condition: every condition must hold, and the
	// aggregated values become the alert's metric snapshot.
	snapshot := make(map[string]float64, len(rule.Conditions))
	severity := domain.SeverityLow
	for i := range rule.Conditions {
		cond := &rule.Conditions[i]
		value, ok := e.aggregate(cond, metrics)
		if !ok || !compare(value, cond.Operator, cond.Threshold) {
			return nil
		}
		snapshot[cond.MetricType] = value
		if s := ClassifySeverity(value, cond.Threshold); severityRank(s) > severityRank(severity) {
			severity = s
		}
	}

	ctx := buildContext(relevant, snapshot)
	now := e.now()

	alert := &domain.Alert{
		ID:              uuid.New().String(),
		RuleID:          rule.ID,
		Type:            rule.Type,
		Severity:        severity,
		Status:          domain.AlertStatusActive,
		Title:           fmt.Sprintf("%s: %s", rule.Name, strings.Join(rule.MetricTypes(), ", ")),
		Message:         buildMessage(rule, snapshot),
		Context:         ctx,
		Recommendations: e.GenerateRecommendations(rule, &ctx),
		TriggeredAt:     now,
		EscalationLevel: 0,
		UpdatedAt:       now,
	}
	return alert
}

// relevantMetrics returns the samples that any of the rule's conditions read.
func (e *Engine) relevantMetrics(rule *domain.AlertRule, metrics []domain.MetricData) []domain.MetricData {
	wanted := make(map[string]struct{}, len(rule.Conditions))
	for _, c := range rule.Conditions {
		wanted[c.MetricType] = struct{}{}
	}

	var relevant []domain.MetricData
	for _, m := range metrics {
		if _, ok := wanted[m.Type]; ok {
			relevant = append(relevant, m)
		}
	}
	return relevant
}

// buildContext derives AlertContext from the contributing samples. The
// subject ids come from the first relevant sample; the time range spans the
// min and max sample timestamps.
func buildContext(relevant []domain.MetricData, snapshot map[string]float64) domain.AlertContext {
	first := relevant[0]

	start, end := first.Timestamp, first.Timestamp
	for _, m := range relevant[1:] {
		if m.Timestamp.Before(start) {
			start = m.Timestamp
		}
		if m.Timestamp.After(end) {
			end = m.Timestamp
		}
	}

	return domain.AlertContext{
		UserID:       first.UserID,
		TeamID:       first.TeamID,
		ProjectID:    first.ProjectID,
		MetricValues: snapshot,
		TimeRange:    domain.TimeRange{Start: start, End: end},
	}
}

// buildMessage renders the alert body with the metric snapshot interpolated.
func buildMessage(rule *domain.AlertRule, snapshot map[string]float64) string {
	types := make([]string, 0, len(snapshot))
	for t := range snapshot {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s: %.2f", t, snapshot[t]))
	}

	return fmt.Sprintf("Rule %q triggered on %s", rule.Name, strings.Join(parts, ", "))
}

// EvaluateRules runs every enabled rule against the samples. A failure in one
// rule is logged and skipped so a single broken rule cannot block the batch.
func (e *Engine) EvaluateRules(metrics []domain.MetricData, rules []*domain.AlertRule) []*domain.Alert {
	var alerts []*domain.Alert
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if alert := e.evaluateRuleSafe(r, metrics); alert != nil {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// evaluateRuleSafe isolates panics from a single rule's evaluation.
func (e *Engine) evaluateRuleSafe(rule *domain.AlertRule, metrics []domain.MetricData) (alert *domain.Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation panicked",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"panic", r,
			)
			alert = nil
		}
	}()
	return e.EvaluateRule(rule, metrics)
}

// ClassifySeverity maps the fractional deviation of a value from its
// threshold to a severity band.
func ClassifySeverity(value, threshold float64) domain.Severity {
	if threshold == 0 {
		return domain.SeverityLow
	}
	deviation := (value - threshold) / threshold
	if deviation < 0 {
		deviation = -deviation
	}

	switch {
	case deviation >= deviationCritical:
		return domain.SeverityCritical
	case deviation >= deviationHigh:
		return domain.SeverityHigh
	case deviation >= deviationMedium:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 3
	case domain.SeverityHigh:
		return 2
	case domain.SeverityMedium:
		return 1
	default:
		return 0
	}
}

// GenerateMLAnomalyAlert drafts an alert from an external anomaly detection
// result. Severity follows the detection confidence.
func (e *Engine) GenerateMLAnomalyAlert(result *domain.MLAnomalyResult, ctx domain.AlertContext) *domain.Alert {
	severity := classifyConfidence(result.Confidence)
	now := e.now()

	msg := fmt.Sprintf(
		"Anomaly detected with %.0f%% confidence. Expected %.2f, observed %.2f.",
		result.Confidence*100, result.ExpectedValue, result.ActualValue,
	)
	if len(result.ContributingFactors) > 0 {
		msg += " Contributing factors: " + strings.Join(result.ContributingFactors, ", ") + "."
	}

	if ctx.MetricValues == nil {
		ctx.MetricValues = map[string]float64{}
	}
	if result.MetricType != "" {
		ctx.MetricValues[result.MetricType] = result.ActualValue
	}

	return &domain.Alert{
		ID:              uuid.New().String(),
		Type:            domain.RuleTypeProductivityAnomaly,
		Severity:        severity,
		Status:          domain.AlertStatusActive,
		Title:           "Anomaly detected",
		Message:         msg,
		Context:         ctx,
		Recommendations: anomalyRecommendations(result),
		TriggeredAt:     now,
		EscalationLevel: 0,
		UpdatedAt:       now,
	}
}

// classifyConfidence maps detection confidence to a severity band.
func classifyConfidence(confidence float64) domain.Severity {
	switch {
	case confidence >= confidenceCritical:
		return domain.SeverityCritical
	case confidence >= confidenceHigh:
		return domain.SeverityHigh
	case confidence >= confidenceMedium:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// anomalyRecommendations builds the follow-ups for an anomaly alert: always
// a root-cause investigation over the top factors, plus an immediate
// attention action when confidence is high.
func anomalyRecommendations(result *domain.MLAnomalyResult) []domain.Recommendation {
	factors := result.ContributingFactors
	if len(factors) > maxContributingFactors {
		factors = factors[:maxContributingFactors]
	}

	recs := []domain.Recommendation{
		{
			ID:          uuid.New().String(),
			Type:        domain.RecommendationInsight,
			Title:       "Investigate Root Cause",
			Description: "Review the top contributing factors: " + strings.Join(factors, ", "),
			Priority:    2,
		},
	}

	if result.Confidence > 0.8 {
		recs = append(recs, domain.Recommendation{
			ID:          uuid.New().String(),
			Type:        domain.RecommendationAction,
			Title:       "Immediate Attention Required",
			Description: "High-confidence anomaly; verify the affected workflow now.",
			Priority:    1,
		})
	}

	return recs
}

// GenerateRecommendations returns the single built-in recommendation for a
// rule's type. Unknown types get the default trend-monitoring suggestion.
func (e *Engine) GenerateRecommendations(rule *domain.AlertRule, ctx *domain.AlertContext) []domain.Recommendation {
	var rec domain.Recommendation
	switch rule.Type {
	case domain.RuleTypeProductivityAnomaly:
		rec = domain.Recommendation{
			Type:        domain.RecommendationAction,
			Title:       "Review Recent Changes",
			Description: "Check for recent workflow or tooling changes that may explain the productivity shift.",
			Priority:    1,
		}
	case domain.RuleTypeQualityThreshold:
		rec = domain.Recommendation{
			Type:        domain.RecommendationAction,
			Title:       "Code Review Focus",
			Description: "Increase review attention on the affected area until quality metrics recover.",
			Priority:    1,
		}
	case domain.RuleTypeFlowInterruption:
		rec = domain.Recommendation{
			Type:        domain.RecommendationAction,
			Title:       "Minimize Interruptions",
			Description: "Block focus time and defer non-urgent meetings and notifications.",
			Priority:    1,
		}
	default:
		rec = domain.Recommendation{
			Type:        domain.RecommendationInsight,
			Title:       "Monitor Trends",
			Description: "Keep watching the affected metrics for sustained deviation.",
			Priority:    3,
		}
	}
	rec.ID = uuid.New().String()
	return []domain.Recommendation{rec}
}
