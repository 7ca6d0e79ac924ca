package store

import (
	"context"
	"time"
)

// CooldownStore provides the atomic insert-if-absent primitive that guards
// the alert dedup/cooldown check. Concurrent evaluations racing on the same
// rule-and-subject slot see exactly one successful Acquire.
// This is typically backed by Redis for production use.
// All methods must be safe for concurrent use.
type CooldownStore interface {
	// Acquire claims the cooldown slot for key with the given TTL.
	// Returns true when the slot was free and is now held by the caller,
	// false when another alert already holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees the slot early, e.g. when the holding alert is
	// acknowledged or resolved before its cooldown elapses.
	Release(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
