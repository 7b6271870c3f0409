package webhooks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "webhook:event:"

// DefaultProcessingTTL bounds how long an in-flight claim blocks redeliveries. A process that
// dies while handling an event leaves a claim that expires after this long.
const DefaultProcessingTTL = 2 * time.Minute

// Deduper remembers processed provider event ids.
type Deduper interface {
	// Claim reserves id for processing and reports whether no other delivery holds it.
	Claim(ctx context.Context, id, eventType string) (bool, error)
	// Complete marks a claimed id as processed for the full retention period.
	Complete(ctx context.Context, id string) error
	// Release forgets id so that a redelivery is processed again.
	Release(ctx context.Context, id string) error
}

// RedisDeduper stores claimed event ids in Redis. Claims live for the processing TTL and are
// extended to the retention TTL once the event has been handled.
type RedisDeduper struct {
	client        *redis.Client
	ttl           time.Duration
	processingTTL time.Duration
}

// NewRedisDeduper creates a deduper that remembers processed ids for ttl.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl, processingTTL: DefaultProcessingTTL}
}

func (d *RedisDeduper) Claim(ctx context.Context, id, eventType string) (bool, error) {
	return d.client.SetNX(ctx, dedupKeyPrefix+id, eventType, d.processingTTL).Result()
}

func (d *RedisDeduper) Complete(ctx context.Context, id string) error {
	return d.client.Expire(ctx, dedupKeyPrefix+id, d.ttl).Err()
}

func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	return d.client.Del(ctx, dedupKeyPrefix+id).Err()
}

// NopDeduper claims every delivery.
type NopDeduper struct{}

func (NopDeduper) Claim(context.Context, string, string) (bool, error) { return true, nil }
func (NopDeduper) Complete(context.Context, string) error              { return nil }
func (NopDeduper) Release(context.Context, string) error               { return nil }
