package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// RedisStore keeps records in Redis so several instances can share
// conversation state. Compare-and-swap uses WATCH/MULTI on the record key.
type RedisStore struct {
	client *goredis.Client
	prefix string
}

var _ ConversationStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Keys are "{prefix}:conv:{userID}".
func NewRedisStore(client *goredis.Client, opts ...Option) *RedisStore {
	cfg := applyOptions(opts)
	return &RedisStore{client: client, prefix: cfg.KeyPrefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":conv:" + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*models.ConversationRecord, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore Get failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeRecord(userID, data)
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, userID string, old, next *models.ConversationRecord) (bool, error) {
	key := s.key(userID)
	swapped := false
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		var cur *models.ConversationRecord
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			if cur, err = decodeRecord(userID, data); err != nil {
				return err
			}
		}
		if !sameVersion(cur, old) {
			return nil
		}
		saved := *next
		saved.Version = nextVersion(old)
		payload, err := encodeRecord(&saved)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		next.Version = saved.Version
		swapped = true
		return nil
	}, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		slog.Error("RedisStore CompareAndSwap failed", "error", err, "userID", userID)
		return false, fmt.Errorf("redis swap: %w", err)
	}
	return swapped, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
