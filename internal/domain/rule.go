package domain

import (
	"errors"
	"time"
)

// ErrRuleNotFound is returned when an alert rule cannot be found.
var ErrRuleNotFound = errors.New("alert rule not found")

// AlertRuleType classifies what kind of condition a rule watches for.
type AlertRuleType string

const (
	// RuleTypeProductivityAnomaly watches for drops or spikes in productivity metrics.
	RuleTypeProductivityAnomaly AlertRuleType = "productivity_anomaly"
	// RuleTypeQualityThreshold watches for code quality metrics crossing a limit.
	RuleTypeQualityThreshold AlertRuleType = "quality_threshold"
	// RuleTypeFlowInterruption watches for excessive interruptions to focus time.
	RuleTypeFlowInterruption AlertRuleType = "flow_interruption"
	// RuleTypeCustom is a user-defined rule with no built-in recommendation.
	RuleTypeCustom AlertRuleType = "custom"
)

// ConditionOperator compares an aggregated metric value to a threshold.
type ConditionOperator string

const (
	OperatorGT  ConditionOperator = "gt"
	OperatorGTE ConditionOperator = "gte"
	OperatorLT  ConditionOperator = "lt"
	OperatorLTE ConditionOperator = "lte"
	OperatorEQ  ConditionOperator = "eq"
	OperatorNE  ConditionOperator = "ne"
)

// IsValid returns true if the operator is a known valid value.
func (o ConditionOperator) IsValid() bool {
	switch o {
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE, OperatorEQ, OperatorNE:
		return true
	default:
		return false
	}
}

// Aggregation is the reduction applied to a metric window before comparison.
type Aggregation string

const (
	AggregationAvg   Aggregation = "avg"
	AggregationSum   Aggregation = "sum"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
	AggregationCount Aggregation = "count"
)

// IsValid returns true if the aggregation is a known valid value.
func (a Aggregation) IsValid() bool {
	switch a {
	case AggregationAvg, AggregationSum, AggregationMin, AggregationMax, AggregationCount:
		return true
	default:
		return false
	}
}

// AlertCondition is one threshold test inside a rule. All conditions of a
// rule must hold for the rule to trigger.
type AlertCondition struct {
	// MetricType selects which samples the condition applies to.
	MetricType string `json:"metric_type"`

	// Operator compares the aggregated value to Threshold.
	Operator ConditionOperator `json:"operator"`

	// Threshold is the comparison boundary.
	Threshold float64 `json:"threshold"`

	// TimeWindowMinutes bounds how far back samples are considered.
	TimeWindowMinutes int `json:"time_window_minutes"`

	// Aggregation reduces the windowed samples to a single value.
	Aggregation Aggregation `json:"aggregation"`
}

// TimeWindow returns the condition's window as a duration.
func (c *AlertCondition) TimeWindow() time.Duration {
	return time.Duration(c.TimeWindowMinutes) * time.Minute
}

// AlertRule is a declarative condition set that produces alerts when satisfied.
type AlertRule struct {
	// ID is the unique identifier for this rule.
	ID string `json:"id"`

	// Name is a short human-readable rule name, used in alert titles.
	Name string `json:"name"`

	// Description explains what the rule watches for.
	Description string `json:"description,omitempty"`

	// Type classifies the rule and drives recommendation selection.
	Type AlertRuleType `json:"type"`

	// Severity is the base severity assigned to alerts from this rule.
	Severity Severity `json:"severity"`

	// Enabled gates evaluation. Disabled rules never trigger.
	Enabled bool `json:"enabled"`

	// Conditions are ANDed together. A rule with zero conditions never triggers.
	Conditions []AlertCondition `json:"conditions"`

	// Actions lists opaque action identifiers attached to the rule.
	Actions []string `json:"actions,omitempty"`

	// CooldownMinutes is the minimum gap between repeated alerts for this rule
	// and the same subject, to suppress alert storms.
	CooldownMinutes int `json:"cooldown_minutes"`

	// EscalationPolicy optionally names the escalation policy to apply.
	EscalationPolicy string `json:"escalation_policy,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validation errors for AlertRule.
var (
	ErrEmptyRuleName        = errors.New("rule name is required")
	ErrInvalidRuleSeverity  = errors.New("severity must be low, medium, high, or critical")
	ErrInvalidCondition     = errors.New("condition has an invalid operator or aggregation")
	ErrEmptyConditionMetric = errors.New("condition metric_type is required")
)

// Validate checks that the rule is well formed. A rule with no conditions is
// valid but can never trigger.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return ErrEmptyRuleName
	}
	if !r.Severity.IsValid() {
		return ErrInvalidRuleSeverity
	}
	for _, c := range r.Conditions {
		if c.MetricType == "" {
			return ErrEmptyConditionMetric
		}
		if !c.Operator.IsValid() || !c.Aggregation.IsValid() {
			return ErrInvalidCondition
		}
	}
	return nil
}

// Cooldown returns the rule's cooldown as a duration.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// MetricTypes returns the distinct metric types the rule's conditions read.
func (r *AlertRule) MetricTypes() []string {
	seen := make(map[string]struct{}, len(r.Conditions))
	var types []string
	for _, c := range r.Conditions {
		if _, ok := seen[c.MetricType]; ok {
			continue
		}
		seen[c.MetricType] = struct{}{}
		types = append(types, c.MetricType)
	}
	return types
}

// RuleFilter provides filtering options for querying rules.
type RuleFilter struct {
	// Enabled filters by the enabled flag when non-nil.
	Enabled *bool

	// Type filters by rule type when non-empty.
	Type AlertRuleType
}
