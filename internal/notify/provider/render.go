package provider

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"vigil-go/internal/domain"
)

// Render substitutes the fixed placeholder set into a template string.
// Every provider renders with the same variables regardless of which ones a
// template declares; unknown placeholders are left untouched.
//
// Subject placeholders (user, team, project) render as "Unknown" when the
// alert has no value for them, so templates never show empty holes.
func Render(text string, alert *domain.Alert) string {
	r := strings.NewReplacer(
		"{{alertId}}", alert.ID,
		"{{alertTitle}}", alert.Title,
		"{{alertMessage}}", alert.Message,
		"{{severity}}", string(alert.Severity),
		"{{type}}", string(alert.Type),
		"{{status}}", string(alert.Status),
		"{{triggeredAt}}", alert.TriggeredAt.Format(time.RFC3339),
		"{{userId}}", orUnknown(alert.Context.UserID),
		"{{teamId}}", orUnknown(alert.Context.TeamID),
		"{{projectId}}", orUnknown(alert.Context.ProjectID),
		"{{recommendations}}", renderRecommendations(alert.Recommendations),
		"{{metricValues}}", renderMetricValues(alert.Context.MetricValues),
	)
	return r.Replace(text)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// renderRecommendations formats recommendations as one bullet line each.
func renderRecommendations(recs []domain.Recommendation) string {
	if len(recs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(recs))
	for _, rec := range recs {
		lines = append(lines, fmt.Sprintf("- %s: %s", rec.Title, rec.Description))
	}
	return strings.Join(lines, "\n")
}

// renderMetricValues formats the metric snapshot as "type: value" pairs in
// stable order.
func renderMetricValues(values map[string]float64) string {
	if len(values) == 0 {
		return ""
	}
	types := make([]string, 0, len(values))
	for t := range values {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s: %.2f", t, values[t]))
	}
	return strings.Join(parts, ", ")
}

// severityColor maps a severity to the hex color used by Slack attachments
// and Teams message cards.
func severityColor(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "#dc3545"
	case domain.SeverityHigh:
		return "#fd7e14"
	case domain.SeverityMedium:
		return "#ffc107"
	default:
		return "#28a745"
	}
}
