package blacklist

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache is an in-process Cache on ttlcache. Entries are never extended on read.
type MemoryCache struct {
	cache *ttlcache.Cache[string, string]
}

// NewMemoryCache creates a MemoryCache and starts its expiry loop. Call Stop to release it.
func NewMemoryCache() *MemoryCache {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()
	return &MemoryCache{cache: cache}
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.cache.Set(key, value, ttl)
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	item := c.cache.Get(key)
	if item == nil || item.IsExpired() {
		return "", false, nil
	}
	return item.Value(), true, nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *MemoryCache) Delete(_ context.Context, key string) (bool, error) {
	_, found := c.cache.GetAndDelete(key)
	return found, nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.cache.Len()
}

// Stop ends the background expiry loop.
func (c *MemoryCache) Stop() {
	c.cache.Stop()
}
