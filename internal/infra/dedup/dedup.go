// Package dedup remembers webhook deliveries already accepted, so that a
// provider retry of the same envelope is dropped before any store work.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/infra/cache"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "webhook:delivery:"

// RedisTracker implements port.DeliveryTracker with SET NX and a TTL, so that
// every replica of the console shares the same view.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTracker creates a tracker on client. Marks expire after ttl.
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl}
}

// MarkSeen records id and reports whether this is its first delivery.
func (t *RedisTracker) MarkSeen(ctx context.Context, id string) (bool, error) {
	ok, err := t.client.SetNX(ctx, keyPrefix+id, time.Now().Unix(), t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Forget removes the mark so that a provider retry is processed again.
func (t *RedisTracker) Forget(ctx context.Context, id string) error {
	if err := t.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// MemoryTracker implements port.DeliveryTracker in process memory. Marks are
// lost on restart; the message_id uniqueness check still holds.
type MemoryTracker struct {
	seen *cache.InMemory[bool]
}

// NewMemoryTracker creates an in-memory tracker whose marks expire after ttl.
// A non-positive ttl falls back to cache.DefaultTTL.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{seen: cache.New[bool](ttl)}
}

// MarkSeen records id and reports whether this is its first delivery.
func (t *MemoryTracker) MarkSeen(_ context.Context, id string) (bool, error) {
	return t.seen.Add(id, true), nil
}

// Forget removes the mark.
func (t *MemoryTracker) Forget(_ context.Context, id string) error {
	t.seen.Delete(id)
	return nil
}

// Close stops the expiry loop.
func (t *MemoryTracker) Close() error {
	t.seen.Close()
	return nil
}
