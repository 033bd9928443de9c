// Package cache provides an in-process stand-in for Redis, used when no Redis URL is configured.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"

	red "subscription-billing/internal/infra/redis"
)

var _ red.RedisClient = (*MemoryClient)(nil)

// MemoryClient implements red.RedisClient on top of go-cache. It is only safe for a
// single process; locks taken here do not coordinate separate replicas.
type MemoryClient struct {
	mu sync.Mutex
	c  *gocache.Cache
}

func NewMemoryClient(cleanup time.Duration) *MemoryClient {
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &MemoryClient{c: gocache.New(gocache.NoExpiration, cleanup)}
}

func ttlOf(d time.Duration) time.Duration {
	if d <= 0 {
		return gocache.NoExpiration
	}
	return d
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func (m *MemoryClient) Ping(context.Context) error { return nil }

func (m *MemoryClient) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	m.c.Set(key, stringify(value), ttlOf(expiration))
	return nil
}

func (m *MemoryClient) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if err := m.c.Add(key, stringify(value), ttlOf(expiration)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", redis.Nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return fmt.Sprint(t), nil
	}
	return "", redis.Nil
}

func (m *MemoryClient) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.c.Add(key, int64(1), gocache.NoExpiration); err == nil {
		return 1, nil
	}
	return m.c.IncrementInt64(key, 1)
}

func (m *MemoryClient) Expire(_ context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(key)
	if !ok {
		return nil
	}
	m.c.Set(key, v, ttlOf(expiration))
	return nil
}

func (m *MemoryClient) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

func (m *MemoryClient) DelIfEquals(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(key)
	if !ok || stringify(v) != value {
		return false, nil
	}
	m.c.Delete(key)
	return true, nil
}

func (m *MemoryClient) Close() error {
	m.c.Flush()
	return nil
}
