package domain

import (
	"testing"
	"time"
)

func TestAlert_Acknowledge(t *testing.T) {
	alert := &Alert{Status: AlertStatusActive}

	if !alert.Acknowledge("user-1") {
		t.Fatal("Acknowledge() should succeed for active alert")
	}
	if alert.Status != AlertStatusAcknowledged {
		t.Errorf("Status = %v, want %v", alert.Status, AlertStatusAcknowledged)
	}
	if alert.AcknowledgedBy != "user-1" {
		t.Errorf("AcknowledgedBy = %v, want user-1", alert.AcknowledgedBy)
	}
	if alert.AcknowledgedAt == nil {
		t.Error("AcknowledgedAt should be set")
	}
}

func TestAlert_Acknowledge_NotActive(t *testing.T) {
	for _, status := range []AlertStatus{AlertStatusAcknowledged, AlertStatusResolved, AlertStatusSuppressed} {
		alert := &Alert{Status: status}
		if alert.Acknowledge("user-1") {
			t.Errorf("Acknowledge() should fail for %v alert", status)
		}
		if alert.Status != status {
			t.Errorf("Status mutated to %v, want %v", alert.Status, status)
		}
		if alert.AcknowledgedBy != "" {
			t.Errorf("AcknowledgedBy mutated for %v alert", status)
		}
	}
}

func TestAlert_Resolve(t *testing.T) {
	for _, status := range []AlertStatus{AlertStatusActive, AlertStatusAcknowledged, AlertStatusSuppressed} {
		alert := &Alert{Status: status}
		if !alert.Resolve("user-2") {
			t.Errorf("Resolve() should succeed for %v alert", status)
		}
		if alert.Status != AlertStatusResolved {
			t.Errorf("Status = %v, want %v", alert.Status, AlertStatusResolved)
		}
		if alert.ResolvedAt == nil {
			t.Error("ResolvedAt should be set")
		}
	}

	resolved := &Alert{Status: AlertStatusResolved}
	if resolved.Resolve("user-2") {
		t.Error("Resolve() should fail for already resolved alert")
	}
}

func TestAlert_Suppress(t *testing.T) {
	until := time.Now().Add(time.Hour)

	alert := &Alert{Status: AlertStatusActive}
	if !alert.Suppress(until) {
		t.Fatal("Suppress() should succeed for active alert")
	}
	if alert.Status != AlertStatusSuppressed {
		t.Errorf("Status = %v, want %v", alert.Status, AlertStatusSuppressed)
	}
	if alert.SuppressedUntil == nil || !alert.SuppressedUntil.Equal(until) {
		t.Errorf("SuppressedUntil = %v, want %v", alert.SuppressedUntil, until)
	}

	resolved := &Alert{Status: AlertStatusResolved}
	if resolved.Suppress(until) {
		t.Error("Suppress() should fail for resolved alert")
	}
}

func TestAlert_IsOpen(t *testing.T) {
	cases := []struct {
		status AlertStatus
		open   bool
	}{
		{AlertStatusActive, true},
		{AlertStatusSuppressed, true},
		{AlertStatusAcknowledged, false},
		{AlertStatusResolved, false},
	}
	for _, tc := range cases {
		alert := &Alert{Status: tc.status}
		if alert.IsOpen() != tc.open {
			t.Errorf("IsOpen() for %v = %v, want %v", tc.status, alert.IsOpen(), tc.open)
		}
	}
}

func TestAlert_DedupKey(t *testing.T) {
	alert := &Alert{
		RuleID:  "rule-1",
		Context: AlertContext{UserID: "user-1", TeamID: "team-1"},
	}
	if got := alert.DedupKey(); got != "rule-1:user-1" {
		t.Errorf("DedupKey() = %v, want rule-1:user-1", got)
	}

	teamScoped := &Alert{RuleID: "rule-1", Context: AlertContext{TeamID: "team-1"}}
	if got := teamScoped.DedupKey(); got != "rule-1:team-1" {
		t.Errorf("DedupKey() = %v, want rule-1:team-1", got)
	}

	unscoped := &Alert{RuleID: "rule-1"}
	if got := unscoped.DedupKey(); got != "rule-1:global" {
		t.Errorf("DedupKey() = %v, want rule-1:global", got)
	}
}

func TestAlert_DedupKey_RuleLess(t *testing.T) {
	anomaly := func(metricType string) *Alert {
		return &Alert{
			Type: RuleTypeProductivityAnomaly,
			Context: AlertContext{
				UserID:       "user-1",
				MetricValues: map[string]float64{metricType: 42},
			},
		}
	}

	if got := anomaly("focus_time").DedupKey(); got != "productivity_anomaly/focus_time:user-1" {
		t.Errorf("DedupKey() = %v, want productivity_anomaly/focus_time:user-1", got)
	}

	// Anomalies on different metrics for the same subject occupy
	// separate slots; repeat anomalies on the same metric collide.
	if anomaly("focus_time").DedupKey() == anomaly("commit_frequency").DedupKey() {
		t.Error("anomalies on different metrics share a dedup key")
	}
	if anomaly("focus_time").DedupKey() != anomaly("focus_time").DedupKey() {
		t.Error("repeat anomalies on the same metric should share a dedup key")
	}

	multi := &Alert{
		Type: RuleTypeProductivityAnomaly,
		Context: AlertContext{
			UserID:       "user-1",
			MetricValues: map[string]float64{"b_metric": 1, "a_metric": 2},
		},
	}
	if got := multi.DedupKey(); got != "productivity_anomaly/a_metric,b_metric:user-1" {
		t.Errorf("DedupKey() = %v, want sorted metric key order", got)
	}
}

func TestAlertRule_Validate(t *testing.T) {
	rule := &AlertRule{
		Name:     "Focus time drop",
		Severity: SeverityHigh,
		Conditions: []AlertCondition{
			{MetricType: "focus_time", Operator: OperatorLT, Threshold: 120, TimeWindowMinutes: 60, Aggregation: AggregationAvg},
		},
	}
	if err := rule.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	noName := &AlertRule{Severity: SeverityLow}
	if err := noName.Validate(); err != ErrEmptyRuleName {
		t.Errorf("Validate() = %v, want %v", err, ErrEmptyRuleName)
	}

	badOp := &AlertRule{
		Name:     "bad",
		Severity: SeverityLow,
		Conditions: []AlertCondition{
			{MetricType: "x", Operator: "contains", Aggregation: AggregationAvg},
		},
	}
	if err := badOp.Validate(); err != ErrInvalidCondition {
		t.Errorf("Validate() = %v, want %v", err, ErrInvalidCondition)
	}
}

func TestAlertRule_MetricTypes(t *testing.T) {
	rule := &AlertRule{
		Conditions: []AlertCondition{
			{MetricType: "focus_time"},
			{MetricType: "interruptions"},
			{MetricType: "focus_time"},
		},
	}
	types := rule.MetricTypes()
	if len(types) != 2 {
		t.Fatalf("MetricTypes() returned %d types, want 2", len(types))
	}
	if types[0] != "focus_time" || types[1] != "interruptions" {
		t.Errorf("MetricTypes() = %v, want [focus_time interruptions]", types)
	}
}

func TestMetricData_ScopeKey(t *testing.T) {
	cases := []struct {
		metric MetricData
		want   string
	}{
		{MetricData{UserID: "u1", TeamID: "t1"}, "u1"},
		{MetricData{TeamID: "t1", ProjectID: "p1"}, "t1"},
		{MetricData{ProjectID: "p1"}, "p1"},
		{MetricData{}, "global"},
	}
	for _, tc := range cases {
		if got := tc.metric.ScopeKey(); got != tc.want {
			t.Errorf("ScopeKey() = %v, want %v", got, tc.want)
		}
	}
}
