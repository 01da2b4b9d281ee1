package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spaolacci/murmur3"

	"github.com/rafaeljc/skuld/internal/validation"
)

// RedisDeduper suppresses duplicate evaluation writes under the queue's
// at-least-once delivery. A reservation is a Redis SET NX on a compact hash
// of the dedupe key; only the first claimant within the TTL gets to write.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

// NewRedisDeduper creates a deduper using the given client. keyPrefix
// namespaces the reservation keys (e.g. "skuld").
func NewRedisDeduper(client *redis.Client, keyPrefix string) *RedisDeduper {
	validation.AssertNotNil(client, "redis client")
	return &RedisDeduper{client: client, prefix: keyPrefix}
}

// Reserve claims the dedupe key for ttl. It returns true when this caller
// won the reservation and may write, false when a previous delivery already
// holds it.
func (d *RedisDeduper) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.redisKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve dedupe key: %w", err)
	}
	return ok, nil
}

// Release drops the reservation so a later delivery can claim the key
// again. Used when the reserved write failed and must be retried.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release dedupe key: %w", err)
	}
	return nil
}

// redisKey hashes the raw key with murmur3 so arbitrarily long dedupe keys
// stay compact in Redis.
func (d *RedisDeduper) redisKey(key string) string {
	h := murmur3.New64()
	_, _ = h.Write([]byte(key)) // Write never returns an error
	return fmt.Sprintf("%s:dedupe:%x", d.prefix, h.Sum64())
}
