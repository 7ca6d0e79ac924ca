package memory

import (
	"context"
	"sort"
	"sync"

	"vigil-go/internal/domain"
)

// NotificationRepository is an in-memory implementation of
// store.NotificationRepository.
type NotificationRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*domain.NotificationDelivery
}

// NewNotificationRepository creates a new in-memory delivery repository.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		deliveries: make(map[string]*domain.NotificationDelivery),
	}
}

// SaveDelivery stores a new delivery record.
func (r *NotificationRepository) SaveDelivery(ctx context.Context, delivery *domain.NotificationDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	deliveryCopy := *delivery
	r.deliveries[delivery.ID] = &deliveryCopy
	return nil
}

// UpdateDelivery modifies an existing delivery record.
func (r *NotificationRepository) UpdateDelivery(ctx context.Context, delivery *domain.NotificationDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.deliveries[delivery.ID]; !exists {
		return domain.ErrDeliveryNotFound
	}

	deliveryCopy := *delivery
	r.deliveries[delivery.ID] = &deliveryCopy
	return nil
}

// GetDelivery retrieves a delivery record by ID.
func (r *NotificationRepository) GetDelivery(ctx context.Context, id string) (*domain.NotificationDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivery, exists := r.deliveries[id]
	if !exists {
		return nil, domain.ErrDeliveryNotFound
	}

	result := *delivery
	return &result, nil
}

// GetDeliveries retrieves all delivery records for an alert.
func (r *NotificationRepository) GetDeliveries(ctx context.Context, alertID string) ([]*domain.NotificationDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.NotificationDelivery
	for _, d := range r.deliveries {
		if d.AlertID != alertID {
			continue
		}
		deliveryCopy := *d
		results = append(results, &deliveryCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// GetFailedDeliveries retrieves failed deliveries with retries remaining.
func (r *NotificationRepository) GetFailedDeliveries(ctx context.Context, maxRetries int) ([]*domain.NotificationDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.NotificationDelivery
	for _, d := range r.deliveries {
		if d.Status != domain.DeliveryFailed || d.RetryCount >= maxRetries {
			continue
		}
		deliveryCopy := *d
		results = append(results, &deliveryCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *NotificationRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = make(map[string]*domain.NotificationDelivery)
}
