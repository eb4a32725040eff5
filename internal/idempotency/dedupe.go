// Package idempotency drops repeated webhook deliveries before they reach the
// database. It is a fast path only; settlement correctness rests on the
// store's conditional update.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper claims a delivery key for a bounded time
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisDeduper uses SET NX EX so only one holder sees a fresh claim
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (d *RedisDeduper) key(k string) string { return fmt.Sprintf("%s:%s", d.prefix, k) }

// Claim returns true the first time key is seen within the TTL.
// When Redis is unavailable it fails open so the delivery is still processed.
func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(key), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		d.log.Warn("dedupe claim failed, processing anyway", zap.String("key", key), zap.Error(err))
		return true, nil
	}
	return ok, nil
}

// Release forgets key so a retried delivery is processed again
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.key(key)).Err(); err != nil {
		return fmt.Errorf("release dedupe key: %w", err)
	}
	return nil
}

// Nop claims every key
type Nop struct{}

func (Nop) Claim(context.Context, string) (bool, error) { return true, nil }
func (Nop) Release(context.Context, string) error       { return nil }

var (
	_ Deduper = (*RedisDeduper)(nil)
	_ Deduper = Nop{}
)
