package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"vigil-go/internal/domain"
)

// InAppNotificationRepository is an in-memory implementation of
// store.InAppNotificationRepository.
type InAppNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.InAppNotification
}

// NewInAppNotificationRepository creates a new in-memory notification store.
func NewInAppNotificationRepository() *InAppNotificationRepository {
	return &InAppNotificationRepository{
		notifications: make(map[string]*domain.InAppNotification),
	}
}

// Save stores a new in-app notification.
func (r *InAppNotificationRepository) Save(ctx context.Context, n *domain.InAppNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nCopy := *n
	r.notifications[n.ID] = &nCopy
	return nil
}

// ListByUser retrieves a user's notifications, newest first.
func (r *InAppNotificationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.InAppNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.InAppNotification
	for _, n := range r.notifications {
		if n.UserID != userID {
			continue
		}
		nCopy := *n
		results = append(results, &nCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// MarkRead flags a notification as read.
func (r *InAppNotificationRepository) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, exists := r.notifications[id]
	if !exists {
		return domain.ErrDeliveryNotFound
	}
	n.Read = true
	return nil
}

// Delete removes a notification by ID.
func (r *InAppNotificationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notifications[id]; !exists {
		return domain.ErrDeliveryNotFound
	}
	delete(r.notifications, id)
	return nil
}

// DeleteExpired removes all notifications whose expiry has passed.
func (r *InAppNotificationRepository) DeleteExpired(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var removed []string
	for id, n := range r.notifications {
		if n.ExpiresAt.Before(now) {
			delete(r.notifications, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// CountByUser returns how many notifications a user has.
func (r *InAppNotificationRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID {
			count++
		}
	}
	return count, nil
}

// DeleteOldestForUser removes the user's n oldest notifications.
func (r *InAppNotificationRepository) DeleteOldestForUser(ctx context.Context, userID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*domain.InAppNotification
	for _, notif := range r.notifications {
		if notif.UserID == userID {
			candidates = append(candidates, notif)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if n > len(candidates) {
		n = len(candidates)
	}

	removed := make([]string, 0, n)
	for _, notif := range candidates[:n] {
		delete(r.notifications, notif.ID)
		removed = append(removed, notif.ID)
	}
	return removed, nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *InAppNotificationRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = make(map[string]*domain.InAppNotification)
}
