package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	DelPrefix(ctx context.Context, prefix string) error
}

// RedisKV wraps go-redis.
type RedisKV struct{ client *redis.Client }

func NewRedisKV(client *redis.Client) *RedisKV { return &RedisKV{client: client} }

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) DelPrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// MemoryKV is a simple in-memory TTL store for DB-less runs and tests.
type MemoryKV struct {
	mu    sync.Mutex
	items map[string]memItem
}

type memItem struct {
	value     string
	expiresAt time.Time
}

func NewMemoryKV() *MemoryKV { return &MemoryKV{items: map[string]memItem{}} }

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
	item, ok := m.items[key]
	if !ok {
		return "", redis.Nil
	}
	return item.value, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
	m.items[key] = memItem{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryKV) DelPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.items, k)
		}
	}
	return nil
}

func (m *MemoryKV) cleanupLocked() {
	now := time.Now()
	for k, v := range m.items {
		if now.After(v.expiresAt) {
			delete(m.items, k)
		}
	}
}

const DefaultTTL = 30 * time.Second

// SelectionCache memoizes effective-policy selections per tenant/user/type.
// Ambiguous selections are never cached: the warning must reach the caller
// on every resolution until the underlying assignments are fixed.
type SelectionCache struct {
	kv  KV
	ttl time.Duration
}

func NewSelectionCache(kv KV, ttl time.Duration) *SelectionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SelectionCache{kv: kv, ttl: ttl}
}

func key(tenantID, userID string, policyType types.PolicyType) string {
	return "effpolicy:" + tenantID + ":" + userID + ":" + string(policyType)
}

func (c *SelectionCache) Get(ctx context.Context, tenantID, userID string, policyType types.PolicyType) (types.Selection, bool) {
	raw, err := c.kv.Get(ctx, key(tenantID, userID, policyType))
	if err != nil {
		return types.Selection{}, false
	}
	var sel types.Selection
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return types.Selection{}, false
	}
	return sel, true
}

func (c *SelectionCache) Put(ctx context.Context, tenantID, userID string, policyType types.PolicyType, sel types.Selection) error {
	if sel.Ambiguous() {
		return nil
	}
	raw, err := json.Marshal(sel)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, key(tenantID, userID, policyType), string(raw), c.ttl)
}

// InvalidateTenant drops every cached selection for the tenant. Called after
// any policy or assignment write; per-user invalidation is not worth the
// bookkeeping at this TTL.
func (c *SelectionCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	return c.kv.DelPrefix(ctx, "effpolicy:"+tenantID+":")
}

// NewKV tries redis, falls back to memory.
func NewKV(ctx context.Context, client *redis.Client) KV {
	if client != nil {
		if err := client.Ping(ctx).Err(); err == nil {
			return NewRedisKV(client)
		}
	}
	return NewMemoryKV()
}
