// Package session tracks login sessions that ended before their access
// tokens expired. A revoked session id is refused by the auth middleware
// and by the lock gate until the longest access token could have expired.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations is the set of ended sessions.
type Revocations interface {
	// Revoke ends session sid for at least ttl.
	Revoke(ctx context.Context, sid string, ttl time.Duration) error
	// IsRevoked reports whether sid was ended.
	IsRevoked(ctx context.Context, sid string) (bool, error)
}

// RedisRevocations keeps one key per ended session under "<prefix>:<sid>".
type RedisRevocations struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRevocations(rdb *redis.Client, prefix string) *RedisRevocations {
	if prefix == "" {
		prefix = "revoked"
	}
	return &RedisRevocations{rdb: rdb, prefix: prefix}
}

func (r *RedisRevocations) key(sid string) string { return r.prefix + ":" + sid }

func (r *RedisRevocations) Revoke(ctx context.Context, sid string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return r.rdb.Set(ctx, r.key(sid), 1, ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, sid string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(sid)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocations is the in-process fallback used when Redis is unavailable.
type MemoryRevocations struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{until: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, sid string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, t := range m.until {
		if now.After(t) {
			delete(m.until, k)
		}
	}
	m.until[sid] = now.Add(ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, sid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.until[sid]
	return ok && !m.now().After(t), nil
}
