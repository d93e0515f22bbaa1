package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// releaseScript deletes the lock only if it is still held by the caller, so
// a run that outlived its TTL cannot drop a lock another worker now owns.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// redisCmdable is the subset of *redis.Client used here.
type redisCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// JobLocker guards a task against concurrent runs.
type JobLocker interface {
	Acquire(ctx context.Context, lockID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID, owner string) error
}

// RedisLocker implements JobLocker with SET NX PX.
type RedisLocker struct {
	client redisCmdable
	prefix string
}

// NewRedisLocker namespaces every lock key under prefix.
func NewRedisLocker(client redisCmdable, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

func (l *RedisLocker) key(lockID string) string {
	return l.prefix + ":lock:" + lockID
}

// Acquire reports whether owner now holds lockID. The lock expires after ttl
// even if never released.
func (l *RedisLocker) Acquire(ctx context.Context, lockID, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(lockID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", lockID, err)
	}
	return ok, nil
}

// Release drops lockID if owner still holds it.
func (l *RedisLocker) Release(ctx context.Context, lockID, owner string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key(lockID)}, owner).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", lockID, err)
	}
	return nil
}

// NewRedisClient parses a redis:// or rediss:// URL and verifies the
// connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// HealthProbe reports Redis reachability to the /health endpoint.
type HealthProbe struct {
	Client redisCmdable
}

func (p HealthProbe) Name() string { return "redis" }

func (p HealthProbe) Check(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

// noopLocker always grants the lock. It is used when no Redis URL is
// configured, which is only safe with a single trigger source.
type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (noopLocker) Release(context.Context, string, string) error { return nil }
