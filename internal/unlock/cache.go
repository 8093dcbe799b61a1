// Package unlock records which resources each login session has unlocked.
// A record lives as long as the session (bounded by a TTL) and is dropped on
// logout or when the resource is deleted.
package unlock

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the per-session unlock record store.
type Cache interface {
	// MarkUnlocked records that session sid unlocked resource rid.
	MarkUnlocked(ctx context.Context, sid string, rid uint64) error
	// IsUnlocked reports whether session sid has unlocked rid.
	IsUnlocked(ctx context.Context, sid string, rid uint64) (bool, error)
	// Remove drops rid from the record of session sid only.
	Remove(ctx context.Context, sid string, rid uint64) error
	// Forget removes rid from every session's record.
	Forget(ctx context.Context, rid uint64) error
	// Clear removes the whole record of session sid.
	Clear(ctx context.Context, sid string) error
}

// RedisCache keeps one set of resource ids per session under
// "<prefix>:s:<sid>" and a reverse index of sessions per resource under
// "<prefix>:r:<rid>" so deleting a resource can reach every session.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a Redis backed cache. A non-positive ttl falls back to 24h.
func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "unlock"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) sessionKey(sid string) string { return c.prefix + ":s:" + sid }

func (c *RedisCache) resourceKey(rid uint64) string {
	return c.prefix + ":r:" + strconv.FormatUint(rid, 10)
}

func (c *RedisCache) MarkUnlocked(ctx context.Context, sid string, rid uint64) error {
	sk, rk := c.sessionKey(sid), c.resourceKey(rid)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, sk, strconv.FormatUint(rid, 10))
		p.Expire(ctx, sk, c.ttl)
		p.SAdd(ctx, rk, sid)
		p.Expire(ctx, rk, c.ttl)
		return nil
	})
	return err
}

func (c *RedisCache) IsUnlocked(ctx context.Context, sid string, rid uint64) (bool, error) {
	return c.rdb.SIsMember(ctx, c.sessionKey(sid), strconv.FormatUint(rid, 10)).Result()
}

func (c *RedisCache) Remove(ctx context.Context, sid string, rid uint64) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SRem(ctx, c.sessionKey(sid), strconv.FormatUint(rid, 10))
		p.SRem(ctx, c.resourceKey(rid), sid)
		return nil
	})
	return err
}

func (c *RedisCache) Forget(ctx context.Context, rid uint64) error {
	rk := c.resourceKey(rid)
	sids, err := c.rdb.SMembers(ctx, rk).Result()
	if err != nil {
		return err
	}
	member := strconv.FormatUint(rid, 10)
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, sid := range sids {
			p.SRem(ctx, c.sessionKey(sid), member)
		}
		p.Del(ctx, rk)
		return nil
	})
	return err
}

func (c *RedisCache) Clear(ctx context.Context, sid string) error {
	sk := c.sessionKey(sid)
	rids, err := c.rdb.SMembers(ctx, sk).Result()
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, rid := range rids {
			p.SRem(ctx, c.prefix+":r:"+rid, sid)
		}
		p.Del(ctx, sk)
		return nil
	})
	return err
}

// MemoryCache is the in-process fallback used when Redis is unavailable.
// Records do not expire; they are bounded by logout and resource deletion.
type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[string]map[uint64]struct{}
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: make(map[string]map[uint64]struct{})}
}

func (m *MemoryCache) MarkUnlocked(_ context.Context, sid string, rid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sessions[sid]
	if !ok {
		set = make(map[uint64]struct{})
		m.sessions[sid] = set
	}
	set[rid] = struct{}{}
	return nil
}

func (m *MemoryCache) IsUnlocked(_ context.Context, sid string, rid uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sid][rid]
	return ok, nil
}

func (m *MemoryCache) Remove(_ context.Context, sid string, rid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions[sid], rid)
	return nil
}

func (m *MemoryCache) Forget(_ context.Context, rid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range m.sessions {
		delete(set, rid)
	}
	return nil
}

func (m *MemoryCache) Clear(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}
