package rule

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"vigil-go/internal/domain"
)

func testEngine() *Engine {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewEngine(logger)
}

// samples returns metrics of one type with the given values, all inside a
// 10-minute window ending now.
func samples(metricType string, values ...float64) []domain.MetricData {
	now := time.Now().UTC()
	metrics := make([]domain.MetricData, 0, len(values))
	for i, v := range values {
		metrics = append(metrics, domain.MetricData{
			Type:      metricType,
			Value:     v,
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
			UserID:    "user-1",
		})
	}
	return metrics
}

func TestEvaluateCondition_Aggregations(t *testing.T) {
	metrics := samples("focus_time", 10, 20, 30)

	cases := []struct {
		name        string
		aggregation domain.Aggregation
		operator    domain.ConditionOperator
		threshold   float64
		want        bool
	}{
		{"avg equals 20", domain.AggregationAvg, domain.OperatorEQ, 20, true},
		{"sum equals 60", domain.AggregationSum, domain.OperatorEQ, 60, true},
		{"max equals 30", domain.AggregationMax, domain.OperatorEQ, 30, true},
		{"min equals 10", domain.AggregationMin, domain.OperatorEQ, 10, true},
		{"count equals 3", domain.AggregationCount, domain.OperatorEQ, 3, true},
		{"avg above 25 fails", domain.AggregationAvg, domain.OperatorGT, 25, false},
	}

	e := testEngine()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cond := &domain.AlertCondition{
				MetricType:        "focus_time",
				Operator:          tc.operator,
				Threshold:         tc.threshold,
				TimeWindowMinutes: 30,
				Aggregation:       tc.aggregation,
			}
			if got := e.EvaluateCondition(cond, metrics); got != tc.want {
				t.Errorf("EvaluateCondition() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateCondition_EmptyWindow(t *testing.T) {
	e := testEngine()
	metrics := samples("other_metric", 10, 20, 30)

	operators := []domain.ConditionOperator{
		domain.OperatorGT, domain.OperatorGTE, domain.OperatorLT,
		domain.OperatorLTE, domain.OperatorEQ, domain.OperatorNE,
	}
	for _, op := range operators {
		cond := &domain.AlertCondition{
			MetricType:        "focus_time",
			Operator:          op,
			Threshold:         0,
			TimeWindowMinutes: 30,
			Aggregation:       domain.AggregationAvg,
		}
		if e.EvaluateCondition(cond, metrics) {
			t.Errorf("EvaluateCondition() with no matching metrics should be false for %v", op)
		}
	}
}

func TestEvaluateCondition_OutsideTimeWindow(t *testing.T) {
	e := testEngine()
	old := []domain.MetricData{{
		Type:      "focus_time",
		Value:     100,
		Timestamp: time.Now().UTC().Add(-2 * time.Hour),
	}}
	cond := &domain.AlertCondition{
		MetricType:        "focus_time",
		Operator:          domain.OperatorGT,
		Threshold:         1,
		TimeWindowMinutes: 30,
		Aggregation:       domain.AggregationAvg,
	}
	if e.EvaluateCondition(cond, old) {
		t.Error("EvaluateCondition() should ignore samples outside the window")
	}
}

func TestEvaluateCondition_UnknownOperator(t *testing.T) {
	e := testEngine()
	cond := &domain.AlertCondition{
		MetricType:        "focus_time",
		Operator:          "matches",
		Threshold:         10,
		TimeWindowMinutes: 30,
		Aggregation:       domain.AggregationAvg,
	}
	if e.EvaluateCondition(cond, samples("focus_time", 10, 20)) {
		t.Error("EvaluateCondition() with unknown operator should be false")
	}
}

func enabledRule() *domain.AlertRule {
	return &domain.AlertRule{
		ID:       "rule-1",
		Name:     "Low focus time",
		Type:     domain.RuleTypeProductivityAnomaly,
		Severity: domain.SeverityMedium,
		Enabled:  true,
		Conditions: []domain.AlertCondition{
			{
				MetricType:        "focus_time",
				Operator:          domain.OperatorLT,
				Threshold:         120,
				TimeWindowMinutes: 60,
				Aggregation:       domain.AggregationAvg,
			},
		},
	}
}

func TestEvaluateRule_Disabled(t *testing.T) {
	e := testEngine()
	rule := enabledRule()
	rule.Enabled = false

	if alert := e.EvaluateRule(rule, samples("focus_time", 30)); alert != nil {
		t.Error("EvaluateRule() should return nil for disabled rule")
	}
}

func TestEvaluateRule_NoConditions(t *testing.T) {
	e := testEngine()
	rule := enabledRule()
	rule.Conditions = nil

	if alert := e.EvaluateRule(rule, samples("focus_time", 30)); alert != nil {
		t.Error("EvaluateRule() should return nil for rule with no conditions")
	}
}

func TestEvaluateRule_OneOfTwoConditionsFails(t *testing.T) {
	e := testEngine()
	rule := enabledRule()
	rule.Conditions = append(rule.Conditions, domain.AlertCondition{
		MetricType:        "interruptions",
		Operator:          domain.OperatorGT,
		Threshold:         1000,
		TimeWindowMinutes: 60,
		Aggregation:       domain.AggregationSum,
	})

	metrics := append(samples("focus_time", 30), samples("interruptions", 5)...)
	if alert := e.EvaluateRule(rule, metrics); alert != nil {
		t.Error("EvaluateRule() should return nil when one ANDed condition fails")
	}
}

func TestEvaluateRule_BuildsAlert(t *testing.T) {
	e := testEngine()
	rule := enabledRule()

	metrics := samples("focus_time", 30, 40)
	alert := e.EvaluateRule(rule, metrics)
	if alert == nil {
		t.Fatal("EvaluateRule() returned nil, want alert")
	}

	if alert.RuleID != rule.ID {
		t.Errorf("RuleID = %v, want %v", alert.RuleID, rule.ID)
	}
	if alert.Status != domain.AlertStatusActive {
		t.Errorf("Status = %v, want %v", alert.Status, domain.AlertStatusActive)
	}
	if alert.EscalationLevel != 0 {
		t.Errorf("EscalationLevel = %v, want 0", alert.EscalationLevel)
	}
	if alert.Context.UserID != "user-1" {
		t.Errorf("Context.UserID = %v, want user-1", alert.Context.UserID)
	}
	if got := alert.Context.MetricValues["focus_time"]; got != 35 {
		t.Errorf("MetricValues[focus_time] = %v, want 35", got)
	}
	if alert.Context.TimeRange.Start.After(alert.Context.TimeRange.End) {
		t.Error("TimeRange start should not be after end")
	}
	if len(alert.Recommendations) != 1 {
		t.Fatalf("Recommendations count = %d, want 1", len(alert.Recommendations))
	}
	if alert.Recommendations[0].Title != "Review Recent Changes" {
		t.Errorf("Recommendation = %v, want Review Recent Changes", alert.Recommendations[0].Title)
	}
	// avg 35 vs threshold 120 is over 50% deviation.
	if alert.Severity != domain.SeverityCritical {
		t.Errorf("Severity = %v, want %v", alert.Severity, domain.SeverityCritical)
	}
}

func TestEvaluateRules_SkipsDisabled(t *testing.T) {
	e := testEngine()
	enabled := enabledRule()
	disabled := enabledRule()
	disabled.ID = "rule-2"
	disabled.Enabled = false

	alerts := e.EvaluateRules(samples("focus_time", 30), []*domain.AlertRule{enabled, disabled})
	if len(alerts) != 1 {
		t.Fatalf("EvaluateRules() produced %d alerts, want 1", len(alerts))
	}
	if alerts[0].RuleID != "rule-1" {
		t.Errorf("alert RuleID = %v, want rule-1", alerts[0].RuleID)
	}
}

func TestClassifySeverity(t *testing.T) {
	cases := []struct {
		value     float64
		threshold float64
		want      domain.Severity
	}{
		{1.0, 0.5, domain.SeverityCritical},
		{0.52, 0.5, domain.SeverityLow},
		{0.6, 0.5, domain.SeverityMedium},
		{0.65, 0.5, domain.SeverityHigh},
		{0.75, 0.5, domain.SeverityCritical},
	}
	for _, tc := range cases {
		if got := ClassifySeverity(tc.value, tc.threshold); got != tc.want {
			t.Errorf("ClassifySeverity(%v, %v) = %v, want %v", tc.value, tc.threshold, got, tc.want)
		}
	}
}

func TestGenerateMLAnomalyAlert_Severity(t *testing.T) {
	cases := []struct {
		confidence float64
		want       domain.Severity
	}{
		{0.95, domain.SeverityCritical},
		{0.75, domain.SeverityHigh},
		{0.55, domain.SeverityMedium},
		{0.25, domain.SeverityLow},
	}

	e := testEngine()
	for _, tc := range cases {
		result := &domain.MLAnomalyResult{
			IsAnomaly:     true,
			Confidence:    tc.confidence,
			ExpectedValue: 100,
			ActualValue:   40,
		}
		alert := e.GenerateMLAnomalyAlert(result, domain.AlertContext{UserID: "user-1"})
		if alert.Severity != tc.want {
			t.Errorf("confidence %v: Severity = %v, want %v", tc.confidence, alert.Severity, tc.want)
		}
	}
}

func TestGenerateMLAnomalyAlert_Recommendations(t *testing.T) {
	e := testEngine()

	highConfidence := &domain.MLAnomalyResult{
		IsAnomaly:           true,
		Confidence:          0.92,
		ExpectedValue:       100,
		ActualValue:         40,
		ContributingFactors: []string{"meetings", "context switches", "build failures", "reviews"},
	}
	alert := e.GenerateMLAnomalyAlert(highConfidence, domain.AlertContext{})
	if len(alert.Recommendations) != 2 {
		t.Fatalf("Recommendations count = %d, want 2 for high confidence", len(alert.Recommendations))
	}
	// Only the top 3 factors make it into the root-cause recommendation.
	if desc := alert.Recommendations[0].Description; !contains(desc, "build failures") || contains(desc, "reviews") {
		t.Errorf("root-cause description should list top 3 factors only, got %q", desc)
	}

	lowConfidence := &domain.MLAnomalyResult{IsAnomaly: true, Confidence: 0.6}
	alert = e.GenerateMLAnomalyAlert(lowConfidence, domain.AlertContext{})
	if len(alert.Recommendations) != 1 {
		t.Fatalf("Recommendations count = %d, want 1 for low confidence", len(alert.Recommendations))
	}
}

func TestGenerateRecommendations_ClosedLookup(t *testing.T) {
	cases := []struct {
		ruleType domain.AlertRuleType
		want     string
	}{
		{domain.RuleTypeProductivityAnomaly, "Review Recent Changes"},
		{domain.RuleTypeQualityThreshold, "Code Review Focus"},
		{domain.RuleTypeFlowInterruption, "Minimize Interruptions"},
		{domain.RuleTypeCustom, "Monitor Trends"},
	}

	e := testEngine()
	for _, tc := range cases {
		rule := &domain.AlertRule{Type: tc.ruleType}
		recs := e.GenerateRecommendations(rule, &domain.AlertContext{})
		if len(recs) != 1 {
			t.Fatalf("GenerateRecommendations() returned %d, want 1", len(recs))
		}
		if recs[0].Title != tc.want {
			t.Errorf("type %v: recommendation = %v, want %v", tc.ruleType, recs[0].Title, tc.want)
		}
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
