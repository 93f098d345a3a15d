package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = time.Minute

// MemoryCache is the in-process Cache used when no Redis URL is configured.
// Expired entries are purged in the background by go-cache's janitor.
type MemoryCache struct {
	mu    sync.Mutex // serializes IncrWithExpiry read-modify-write
	items *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return newMemoryCache(defaultCleanupInterval)
}

func newMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (c *MemoryCache) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (c *MemoryCache) SetRequestStatus(_ context.Context, requestID uuid.UUID, status string, ttl time.Duration) error {
	c.items.Set(RequestStatusKey(requestID), status, expiration(ttl))
	return nil
}

func (c *MemoryCache) GetRequestStatus(_ context.Context, requestID uuid.UUID) (string, bool, error) {
	v, ok := c.items.Get(RequestStatusKey(requestID))
	if !ok {
		return "", false, nil
	}
	status, _ := v.(string)
	return status, true, nil
}

// IncrWithExpiry increments the counter at key and refreshes its expiry,
// matching the Redis INCR + EXPIRE pipeline.
func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	if v, ok := c.items.Get(key); ok {
		n, _ = v.(int64)
	}
	n++
	c.items.Set(key, n, expiration(expiry))
	return n, nil
}

// expiration maps a Redis-style TTL (zero means none) onto go-cache's.
func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
