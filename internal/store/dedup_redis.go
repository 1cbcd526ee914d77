package store

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisDedup is a DedupRepo backed by SET NX with expiry.
type RedisDedup struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

var _ DedupRepo = (*RedisDedup)(nil)

// NewRedisDedup wraps an existing client. Markers expire after WithTTL.
func NewRedisDedup(client *goredis.Client, opts ...Option) *RedisDedup {
	cfg := applyOptions(opts)
	return &RedisDedup{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

func (d *RedisDedup) key(messageID string) string {
	return d.prefix + ":dedup:" + messageID
}

func (d *RedisDedup) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDedup) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(messageID), userID, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return ok, nil
}

func (d *RedisDedup) MarkProcessed(ctx context.Context, messageID string) error {
	// Expiry already bounds the marker; refresh it from the processing time.
	if err := d.client.Expire(ctx, d.key(messageID), d.ttl).Err(); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
