package memory

import (
	"context"
	"sync"
	"time"
)

// CooldownStore is an in-memory implementation of store.CooldownStore.
// Expired slots are reaped lazily on Acquire.
type CooldownStore struct {
	mu    sync.Mutex
	slots map[string]time.Time
}

// NewCooldownStore creates a new in-memory cooldown store.
func NewCooldownStore() *CooldownStore {
	return &CooldownStore{
		slots: make(map[string]time.Time),
	}
}

// Acquire claims the cooldown slot for key with the given TTL.
func (s *CooldownStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, held := s.slots[key]; held && expiry.After(now) {
		return false, nil
	}
	s.slots[key] = now.Add(ttl)
	return true, nil
}

// Release frees the slot early.
func (s *CooldownStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
	return nil
}

// Close releases resources. No-op for the in-memory store.
func (s *CooldownStore) Close() error {
	return nil
}
