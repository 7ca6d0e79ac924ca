// Package store defines interfaces for data persistence and state management.
// These abstractions allow swapping implementations (PostgreSQL, Redis,
// in-memory) without changing business logic.
package store

import (
	"context"

	"vigil-go/internal/domain"
)

// AlertRepository defines the interface for persistent alert storage.
// This is typically backed by PostgreSQL for production use.
type AlertRepository interface {
	// Save stores a new alert.
	Save(ctx context.Context, alert *domain.Alert) error

	// Update modifies an existing alert.
	Update(ctx context.Context, alert *domain.Alert) error

	// GetByID retrieves an alert by its ID.
	GetByID(ctx context.Context, id string) (*domain.Alert, error)

	// List retrieves alerts matching the filter criteria.
	List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error)

	// GetActive retrieves all alerts currently in the active state.
	GetActive(ctx context.Context) ([]*domain.Alert, error)

	// History retrieves the full alert history.
	History(ctx context.Context) ([]*domain.Alert, error)

	// FindOpenByDedupKey retrieves the most recent open (active or
	// suppressed) alert occupying the given rule-and-subject slot.
	// Returns nil, nil when no open alert holds the slot.
	FindOpenByDedupKey(ctx context.Context, dedupKey string) (*domain.Alert, error)

	// Delete removes an alert. The alerting core never calls this; it exists
	// for operator tooling.
	Delete(ctx context.Context, id string) error
}

// AlertRuleRepository defines the interface for alert rule persistence.
type AlertRuleRepository interface {
	// Save stores a new rule.
	Save(ctx context.Context, rule *domain.AlertRule) error

	// Update modifies an existing rule.
	Update(ctx context.Context, rule *domain.AlertRule) error

	// GetByID retrieves a rule by its ID.
	GetByID(ctx context.Context, id string) (*domain.AlertRule, error)

	// List retrieves rules matching the filter criteria.
	List(ctx context.Context, filter domain.RuleFilter) ([]*domain.AlertRule, error)

	// Delete removes a rule by ID.
	Delete(ctx context.Context, id string) error
}

// NotificationRepository defines the interface for delivery record storage.
type NotificationRepository interface {
	// SaveDelivery stores a new delivery record.
	SaveDelivery(ctx context.Context, delivery *domain.NotificationDelivery) error

	// UpdateDelivery modifies an existing delivery record.
	UpdateDelivery(ctx context.Context, delivery *domain.NotificationDelivery) error

	// GetDelivery retrieves a delivery record by ID.
	GetDelivery(ctx context.Context, id string) (*domain.NotificationDelivery, error)

	// GetDeliveries retrieves all delivery records for an alert.
	GetDeliveries(ctx context.Context, alertID string) ([]*domain.NotificationDelivery, error)

	// GetFailedDeliveries retrieves failed deliveries that still have
	// retries left (retry count below maxRetries).
	GetFailedDeliveries(ctx context.Context, maxRetries int) ([]*domain.NotificationDelivery, error)
}

// TemplateRepository defines the interface for notification template storage.
type TemplateRepository interface {
	// GetByChannelAndType retrieves the template for a channel and alert type.
	GetByChannelAndType(ctx context.Context, channel domain.NotificationChannel, alertType domain.AlertRuleType) (*domain.NotificationTemplate, error)

	// GetByID retrieves a template by its ID.
	GetByID(ctx context.Context, id string) (*domain.NotificationTemplate, error)

	// Save stores a new template.
	Save(ctx context.Context, tmpl *domain.NotificationTemplate) error

	// Update modifies an existing template.
	Update(ctx context.Context, tmpl *domain.NotificationTemplate) error

	// Delete removes a template by ID.
	Delete(ctx context.Context, id string) error
}

// InAppNotificationRepository defines the interface for the in-app provider's
// persisted notification records.
type InAppNotificationRepository interface {
	// Save stores a new in-app notification.
	Save(ctx context.Context, n *domain.InAppNotification) error

	// ListByUser retrieves a user's notifications, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.InAppNotification, error)

	// MarkRead flags a notification as read.
	MarkRead(ctx context.Context, id string) error

	// Delete removes a notification by ID.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes all notifications whose expiry has passed.
	// Returns the ids of the removed records.
	DeleteExpired(ctx context.Context) ([]string, error)

	// CountByUser returns how many notifications a user has.
	CountByUser(ctx context.Context, userID string) (int, error)

	// DeleteOldestForUser removes the user's n oldest notifications.
	// Returns the ids of the removed records.
	DeleteOldestForUser(ctx context.Context, userID string, n int) ([]string, error)
}
