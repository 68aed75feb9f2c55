// Package memory is an in-process archive address cache.
package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time
}

// Cache is a mutex-guarded map with per-entry expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache. now may be nil to use the wall clock.
func New(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{entries: make(map[string]entry), now: now}
}

// Get returns the cached address if it has not expired.
func (c *Cache) Get(_ context.Context, target string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[target]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.mu.Lock()
		delete(c.entries, target)
		c.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores archiveURL for ttl; a non-positive ttl never expires.
func (c *Cache) Set(_ context.Context, target, archiveURL string, ttl time.Duration) error {
	e := entry{value: archiveURL}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[target] = e
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
