package lockgate

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/imagelock/internal/config"
)

// Lockout throttles repeated failed unlock attempts for one key.
type Lockout interface {
	// Check returns how long the key is still locked, zero when it is not.
	Check(ctx context.Context, key string) (time.Duration, error)
	// Failure records a failed attempt and returns the lock it triggered,
	// zero when the key stays open.
	Failure(ctx context.Context, key string) (time.Duration, error)
	// Reset forgets failures and any running lock.
	Reset(ctx context.Context, key string) error
}

// NoLockout never locks. Used when Redis is unavailable or lockout is off.
type NoLockout struct{}

func (NoLockout) Check(context.Context, string) (time.Duration, error)   { return 0, nil }
func (NoLockout) Failure(context.Context, string) (time.Duration, error) { return 0, nil }
func (NoLockout) Reset(context.Context, string) error                    { return nil }

// KEYS[1] failure counter, KEYS[2] lock marker.
// ARGV: window_ms, max_failures, base_ms, max_ms.
// Once the counter reaches max_failures each further failure doubles the lock.
var failureScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	local window = tonumber(ARGV[1])
	if n == 1 then redis.call('PEXPIRE', KEYS[1], window) end
	local maxf = tonumber(ARGV[2])
	if n < maxf then return 0 end
	local lock = tonumber(ARGV[3]) * (2 ^ (n - maxf))
	local cap = tonumber(ARGV[4])
	if lock > cap then lock = cap end
	lock = math.floor(lock)
	redis.call('SET', KEYS[2], n, 'PX', lock)
	redis.call('PEXPIRE', KEYS[1], lock + window)
	return lock
`)

// RedisLockout keeps its counters in Redis so every server instance sees
// the same failures.
type RedisLockout struct {
	rdb *redis.Client
	cfg config.LockoutConfig
}

func NewRedisLockout(rdb *redis.Client, cfg config.LockoutConfig) *RedisLockout {
	return &RedisLockout{rdb: rdb, cfg: cfg}
}

func (l *RedisLockout) keys(key string) []string {
	return []string{l.cfg.Prefix + ":f:" + key, l.cfg.Prefix + ":l:" + key}
}

func (l *RedisLockout) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, l.keys(key)[1]).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 { // -2 missing, -1 no expiry
		return 0, nil
	}
	return ttl, nil
}

func (l *RedisLockout) Failure(ctx context.Context, key string) (time.Duration, error) {
	ms, err := failureScript.Run(ctx, l.rdb, l.keys(key),
		l.cfg.Window.Milliseconds(),
		l.cfg.MaxFailures,
		l.cfg.Base.Milliseconds(),
		l.cfg.Max.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (l *RedisLockout) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.keys(key)...).Err()
}

// NewLockout picks the Redis implementation when it can, NoLockout otherwise.
func NewLockout(rdb *redis.Client, cfg config.LockoutConfig) Lockout {
	if !cfg.Enabled || rdb == nil {
		return NoLockout{}
	}
	return NewRedisLockout(rdb, cfg)
}
