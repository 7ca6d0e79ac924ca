// Package domain contains the core business entities and value objects for
// Vigil. These models represent the ubiquitous language of the alerting core:
// metric samples in, rules over them, alerts out, notifications about alerts.
package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrAlertNotFound is returned when an alert cannot be found.
var ErrAlertNotFound = errors.New("alert not found")

// Severity is the ordinal urgency classification of an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid returns true if the severity is a known valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// AlertStatus represents the current lifecycle state of an alert.
type AlertStatus string

const (
	// AlertStatusActive indicates the alert is open and unhandled.
	AlertStatusActive AlertStatus = "active"
	// AlertStatusAcknowledged indicates someone has taken ownership.
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	// AlertStatusResolved indicates the underlying condition was addressed.
	AlertStatusResolved AlertStatus = "resolved"
	// AlertStatusSuppressed indicates the alert is muted until a deadline.
	AlertStatusSuppressed AlertStatus = "suppressed"
)

// AlertContext captures what the contributing metrics looked like when the
// alert fired.
type AlertContext struct {
	// UserID, TeamID, and ProjectID identify the subject of the alert.
	// Taken from the first contributing metric sample.
	UserID    string `json:"user_id,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`

	// MetricValues is a snapshot of the aggregated value per metric type.
	MetricValues map[string]float64 `json:"metric_values"`

	// TimeRange spans the timestamps of the contributing samples.
	TimeRange TimeRange `json:"time_range"`

	// AdditionalData carries free-form context, e.g. anomaly factors.
	AdditionalData map[string]string `json:"additional_data,omitempty"`
}

// TimeRange is a closed [Start, End] interval.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RecommendationType classifies what kind of follow-up a recommendation is.
type RecommendationType string

const (
	RecommendationAction   RecommendationType = "action"
	RecommendationInsight  RecommendationType = "insight"
	RecommendationResource RecommendationType = "resource"
)

// Recommendation is a suggested follow-up attached to an alert.
// Lower Priority means more urgent.
type Recommendation struct {
	ID              string             `json:"id"`
	Type            RecommendationType `json:"type"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Priority        int                `json:"priority"`
	ActionURL       string             `json:"action_url,omitempty"`
	EstimatedImpact string             `json:"estimated_impact,omitempty"`
}

// Alert is a triggered instance of a rule or anomaly detection. Alerts are
// created by the rule engine and mutated only through the lifecycle methods
// below.
type Alert struct {
	// ID is the unique identifier for this alert.
	ID string `json:"id"`

	// RuleID references the rule that produced the alert. Empty for
	// ML-anomaly alerts, which have no backing rule.
	RuleID string `json:"rule_id,omitempty"`

	// Type mirrors the producing rule's type.
	Type AlertRuleType `json:"type"`

	// Severity is the classified urgency.
	Severity Severity `json:"severity"`

	// Status is the current lifecycle state.
	Status AlertStatus `json:"status"`

	// Title is a short human-readable headline.
	Title string `json:"title"`

	// Message is the full alert body with the metric snapshot interpolated.
	Message string `json:"message"`

	// Context captures the contributing metrics and subject.
	Context AlertContext `json:"context"`

	// Recommendations are suggested follow-ups.
	Recommendations []Recommendation `json:"recommendations,omitempty"`

	// TriggeredAt is when the alert fired.
	TriggeredAt time.Time `json:"triggered_at"`

	// AcknowledgedAt and AcknowledgedBy record who took ownership, if anyone.
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`

	// ResolvedAt and ResolvedBy record who closed the alert, if anyone.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`

	// EscalationLevel counts how many times the alert has been escalated.
	EscalationLevel int `json:"escalation_level"`

	// SuppressedUntil is set while the alert is suppressed.
	SuppressedUntil *time.Time `json:"suppressed_until,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive returns true if the alert is open and unhandled.
func (a *Alert) IsActive() bool {
	return a.Status == AlertStatusActive
}

// IsOpen returns true while the alert has not reached a resolved state.
// Open alerts hold the cooldown window for their rule and subject.
func (a *Alert) IsOpen() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusSuppressed
}

// Acknowledge moves the alert to acknowledged. It only succeeds from the
// active state; any other state is a no-op and returns false.
func (a *Alert) Acknowledge(userID string) bool {
	if a.Status != AlertStatusActive {
		return false
	}
	now := time.Now().UTC()
	a.Status = AlertStatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = userID
	a.UpdatedAt = now
	return true
}

// Resolve closes the alert. Allowed from any non-resolved state.
func (a *Alert) Resolve(userID string) bool {
	if a.Status == AlertStatusResolved {
		return false
	}
	now := time.Now().UTC()
	a.Status = AlertStatusResolved
	a.ResolvedAt = &now
	a.ResolvedBy = userID
	a.UpdatedAt = now
	return true
}

// Suppress mutes the alert until the given deadline. Only active alerts can
// be suppressed.
func (a *Alert) Suppress(until time.Time) bool {
	if a.Status != AlertStatusActive {
		return false
	}
	a.Status = AlertStatusSuppressed
	a.SuppressedUntil = &until
	a.UpdatedAt = time.Now().UTC()
	return true
}

// Unsuppress returns a suppressed alert to active once its deadline has
// passed. Returns false if the alert is not suppressed.
func (a *Alert) Unsuppress() bool {
	if a.Status != AlertStatusSuppressed {
		return false
	}
	a.Status = AlertStatusActive
	a.SuppressedUntil = nil
	a.UpdatedAt = time.Now().UTC()
	return true
}

// Escalate bumps the escalation level.
func (a *Alert) Escalate() {
	a.EscalationLevel++
	a.UpdatedAt = time.Now().UTC()
}

// DedupKey identifies the slot an alert occupies for cooldown purposes:
// the rule and subject. Rule-less anomaly alerts key on the alert type and
// the metrics that fired instead, so anomalies on different metrics for the
// same subject do not suppress each other.
func (a *Alert) DedupKey() string {
	source := a.RuleID
	if source == "" {
		source = string(a.Type) + "/" + a.Context.metricKey()
	}
	return source + ":" + a.Context.subjectKey()
}

func (c *AlertContext) metricKey() string {
	keys := make([]string, 0, len(c.MetricValues))
	for k := range c.MetricValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (c *AlertContext) subjectKey() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.TeamID != "":
		return c.TeamID
	case c.ProjectID != "":
		return c.ProjectID
	default:
		return "global"
	}
}

// AlertFilter provides filtering options for querying alerts.
type AlertFilter struct {
	RuleID   string
	Status   AlertStatus
	Severity Severity
	UserID   string
	Limit    int
	Offset   int
}

// AlertMetrics is the reporting summary over the alert history.
type AlertMetrics struct {
	TotalAlerts              int                   `json:"total_alerts"`
	AlertsByType             map[AlertRuleType]int `json:"alerts_by_type"`
	AlertsBySeverity         map[Severity]int      `json:"alerts_by_severity"`
	AverageResolutionMinutes float64               `json:"average_resolution_minutes"`
	EscalationRate           float64               `json:"escalation_rate"`
}

// MLAnomalyResult is the output of the external anomaly detection pipeline.
// The alerting core consumes these; it never produces them.
type MLAnomalyResult struct {
	IsAnomaly           bool     `json:"is_anomaly"`
	Confidence          float64  `json:"confidence"`
	AnomalyScore        float64  `json:"anomaly_score"`
	MetricType          string   `json:"metric_type"`
	ExpectedValue       float64  `json:"expected_value"`
	ActualValue         float64  `json:"actual_value"`
	ContributingFactors []string `json:"contributing_factors,omitempty"`
}

// AlertFeedback is user feedback about alert quality, forwarded to external
// learning pipelines.
type AlertFeedback struct {
	AlertID     string    `json:"alert_id"`
	UserID      string    `json:"user_id"`
	Useful      bool      `json:"useful"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
