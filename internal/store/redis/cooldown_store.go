// Package redis provides Redis-based implementations of the store interfaces.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vigil-go/internal/config"
)

// prefixCooldown namespaces cooldown slot keys in Redis.
const prefixCooldown = "cooldown:"

// CooldownStore implements store.CooldownStore using Redis. SET NX gives the
// atomic insert-if-absent semantics the dedup check needs across instances.
type CooldownStore struct {
	client *redis.Client
}

// NewCooldownStore creates a new Redis-backed cooldown store.
func NewCooldownStore(cfg *config.RedisConfig) (*CooldownStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CooldownStore{client: client}, nil
}

// Acquire claims the cooldown slot for key with the given TTL.
func (s *CooldownStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, prefixCooldown+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire cooldown slot: %w", err)
	}
	return ok, nil
}

// Release frees the slot early.
func (s *CooldownStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, prefixCooldown+key).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown slot: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *CooldownStore) Close() error {
	return s.client.Close()
}
