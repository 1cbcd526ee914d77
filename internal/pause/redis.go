package pause

import (
	"context"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"
)

// RedisRegistry shares pause state between instances through Redis.
type RedisRegistry struct {
	client    *goredis.Client
	globalKey string
	pausedKey string
	exemptKey string
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedisRegistry stores state under "{prefix}:pause:*".
func NewRedisRegistry(client *goredis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "wapi"
	}
	base := prefix + ":pause:"
	return &RedisRegistry{
		client:    client,
		globalKey: base + "global",
		pausedKey: base + "users",
		exemptKey: base + "exempt",
	}
}

func (r *RedisRegistry) IsActionable(ctx context.Context, userID string) (bool, error) {
	var global *goredis.StringCmd
	var paused, exempt *goredis.BoolCmd
	_, err := r.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		global = pipe.Get(ctx, r.globalKey)
		paused = pipe.SIsMember(ctx, r.pausedKey, userID)
		exempt = pipe.SIsMember(ctx, r.exemptKey, userID)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("read pause state: %w", err)
	}
	return actionable(global.Val() == "1", exempt.Val(), paused.Val()), nil
}

func (r *RedisRegistry) PauseAll(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.globalKey, "1", 0)
		pipe.Del(ctx, r.exemptKey)
		return nil
	})
	return err
}

func (r *RedisRegistry) ResumeAll(ctx context.Context) error {
	return r.client.Del(ctx, r.globalKey, r.pausedKey, r.exemptKey).Err()
}

func (r *RedisRegistry) Pause(ctx context.Context, userID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, r.pausedKey, userID)
		pipe.SRem(ctx, r.exemptKey, userID)
		return nil
	})
	return err
}

// resumeScript clears the user's pause and, only while the global flag is
// set, adds the exemption. KEYS: global, paused, exempt.
var resumeScript = goredis.NewScript(`
redis.call('SREM', KEYS[2], ARGV[1])
if redis.call('GET', KEYS[1]) == '1' then
  redis.call('SADD', KEYS[3], ARGV[1])
end
return 1
`)

func (r *RedisRegistry) Resume(ctx context.Context, userID string) error {
	return resumeScript.Run(ctx, r.client, []string{r.globalKey, r.pausedKey, r.exemptKey}, userID).Err()
}

func (r *RedisRegistry) Exempt(ctx context.Context, userID string) error {
	return r.client.SAdd(ctx, r.exemptKey, userID).Err()
}

func (r *RedisRegistry) Snapshot(ctx context.Context) (Snapshot, error) {
	global, err := r.client.Get(ctx, r.globalKey).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return Snapshot{}, fmt.Errorf("read global pause: %w", err)
	}
	paused, err := r.client.SMembers(ctx, r.pausedKey).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read paused users: %w", err)
	}
	exempt, err := r.client.SMembers(ctx, r.exemptKey).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read exempt users: %w", err)
	}
	sort.Strings(paused)
	sort.Strings(exempt)
	return Snapshot{GloballyPaused: global == "1", Paused: paused, Exempt: exempt}, nil
}
