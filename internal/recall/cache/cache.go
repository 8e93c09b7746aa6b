// Package cache implements the bounded recall-result cache (spec §4.9): a
// small LRU of recent MemoryContext values keyed by query fingerprint, with
// a manual TTL check on read and invalidation via a write-version counter
// bumped on every successful store write.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// DefaultTTL is the default cache-entry lifetime.
const DefaultTTL = 60 * time.Second

// DefaultCapacity bounds the number of cached recall results.
const DefaultCapacity = 256

type entry struct {
	context  *types.MemoryContext
	version  uint64
	cachedAt time.Time
}

// Cache is a bounded, TTL-checked, version-invalidated cache of MemoryContext
// results. The zero value is not usable; construct with New.
type Cache struct {
	inner   *lru.Cache[string, entry]
	ttl     time.Duration
	version atomic.Uint64
}

// New builds a Cache with the given capacity and TTL. capacity<=0 falls back
// to DefaultCapacity; ttl<=0 falls back to DefaultTTL.
func New(capacity int, ttl time.Duration) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	inner, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("recall/cache: %w", err)
	}
	return &Cache{inner: inner, ttl: ttl}, nil
}

// Key builds the cache key from the query fingerprint components (spec
// §4.9: normalized_prompt, max, strategy, filter_fingerprint).
func Key(normalizedPrompt string, max int, strategy string, filterFingerprint string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s\x00%s", normalizedPrompt, max, strategy, filterFingerprint)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached MemoryContext for key if present, not expired, and
// written under the cache's current version.
func (c *Cache) Get(key string) (*types.MemoryContext, bool) {
	e, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	if e.version != c.version.Load() {
		c.inner.Remove(key)
		return nil, false
	}
	if time.Since(e.cachedAt) > c.ttl {
		c.inner.Remove(key)
		return nil, false
	}
	return e.context, true
}

// Put stores ctx under key at the cache's current version.
func (c *Cache) Put(key string, ctx *types.MemoryContext) {
	c.inner.Add(key, entry{context: ctx, version: c.version.Load(), cachedAt: time.Now()})
}

// Invalidate bumps the version counter, logically invalidating every entry
// cached before this call without an explicit sweep. Call this after any
// successful write to the store.
func (c *Cache) Invalidate() {
	c.version.Add(1)
}

// Len reports the number of entries currently tracked (including
// not-yet-reaped stale ones).
func (c *Cache) Len() int {
	return c.inner.Len()
}
