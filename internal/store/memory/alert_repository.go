// Package memory provides in-memory implementations of the store interfaces.
// These are used for tests and for running the service without external
// dependencies.
package memory

import (
	"context"
	"sort"
	"sync"

	"vigil-go/internal/domain"
)

// AlertRepository is an in-memory implementation of store.AlertRepository.
// Alerts are indexed by ID and, while open, by their dedup key.
type AlertRepository struct {
	mu sync.RWMutex

	// alerts stores all alerts by ID
	alerts map[string]*domain.Alert
}

// NewAlertRepository creates a new in-memory alert repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{
		alerts: make(map[string]*domain.Alert),
	}
}

// Save stores a new alert.
func (r *AlertRepository) Save(ctx context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modification
	alertCopy := *alert
	r.alerts[alert.ID] = &alertCopy
	return nil
}

// Update modifies an existing alert.
func (r *AlertRepository) Update(ctx context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.alerts[alert.ID]; !exists {
		return domain.ErrAlertNotFound
	}

	alertCopy := *alert
	r.alerts[alert.ID] = &alertCopy
	return nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, exists := r.alerts[id]
	if !exists {
		return nil, domain.ErrAlertNotFound
	}

	result := *alert
	return &result, nil
}

// List retrieves alerts matching the filter criteria.
func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.Alert
	for _, alert := range r.alerts {
		if filter.RuleID != "" && alert.RuleID != filter.RuleID {
			continue
		}
		if filter.Status != "" && alert.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		if filter.UserID != "" && alert.Context.UserID != filter.UserID {
			continue
		}

		alertCopy := *alert
		results = append(results, &alertCopy)
	}

	// Newest first for stable pagination.
	sort.Slice(results, func(i, j int) bool {
		return results[i].TriggeredAt.After(results[j].TriggeredAt)
	})

	start := filter.Offset
	if start > len(results) {
		start = len(results)
	}
	end := len(results)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	return results[start:end], nil
}

// GetActive retrieves all alerts currently in the active state.
func (r *AlertRepository) GetActive(ctx context.Context) ([]*domain.Alert, error) {
	return r.List(ctx, domain.AlertFilter{Status: domain.AlertStatusActive})
}

// History retrieves the full alert history.
func (r *AlertRepository) History(ctx context.Context) ([]*domain.Alert, error) {
	return r.List(ctx, domain.AlertFilter{})
}

// FindOpenByDedupKey retrieves the most recent open alert for the given
// rule-and-subject slot. Returns nil, nil when the slot is free.
func (r *AlertRepository) FindOpenByDedupKey(ctx context.Context, dedupKey string) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Alert
	for _, alert := range r.alerts {
		if !alert.IsOpen() || alert.DedupKey() != dedupKey {
			continue
		}
		if latest == nil || alert.TriggeredAt.After(latest.TriggeredAt) {
			latest = alert
		}
	}
	if latest == nil {
		return nil, nil
	}

	result := *latest
	return &result, nil
}

// Delete removes an alert by ID.
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.alerts[id]; !exists {
		return domain.ErrAlertNotFound
	}
	delete(r.alerts, id)
	return nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *AlertRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = make(map[string]*domain.Alert)
}
