package domain

import (
	"errors"
	"time"
)

// Validation errors for MetricData.
var (
	ErrEmptyMetricType     = errors.New("metric type is required")
	ErrZeroMetricTimestamp = errors.New("metric timestamp is required")
)

// MetricData is a single timestamped metric sample from the productivity feed.
// Samples are tagged with the user, team, or project they were measured for.
type MetricData struct {
	// Type identifies the metric, e.g. "focus_time" or "code_quality_score".
	Type string `json:"type"`

	// Value is the sampled measurement.
	Value float64 `json:"value"`

	// Timestamp is when the sample was taken.
	Timestamp time.Time `json:"timestamp"`

	// UserID is the user this sample belongs to, if any.
	UserID string `json:"user_id,omitempty"`

	// TeamID is the team this sample belongs to, if any.
	TeamID string `json:"team_id,omitempty"`

	// ProjectID is the project this sample belongs to, if any.
	ProjectID string `json:"project_id,omitempty"`

	// Metadata carries optional free-form sample annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks that the sample has the required fields.
func (m *MetricData) Validate() error {
	if m.Type == "" {
		return ErrEmptyMetricType
	}
	if m.Timestamp.IsZero() {
		return ErrZeroMetricTimestamp
	}
	return nil
}

// ScopeKey returns the identity the sample is scoped to, preferring userID
// over teamID over projectID. It is used as a partition key so that samples
// for the same subject are evaluated in order.
func (m *MetricData) ScopeKey() string {
	switch {
	case m.UserID != "":
		return m.UserID
	case m.TeamID != "":
		return m.TeamID
	case m.ProjectID != "":
		return m.ProjectID
	default:
		return "global"
	}
}

// MetricBatch is the unit of work published to the evaluation queue.
type MetricBatch struct {
	Metrics    []MetricData `json:"metrics"`
	ReceivedAt time.Time    `json:"received_at"`
}
