package binding

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a TTL-based in-memory cache with stale-while-revalidate for
// bindings, keyed by binding ID. Uses sync.Map for lock-free reads on the
// dispatch hot path.
type Cache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	binding    *Binding // nil = negative cache (binding not found)
	expiresAt  time.Time
	refreshing atomic.Bool
}

// CacheGetResult holds the result of a cache lookup.
type CacheGetResult struct {
	Binding      *Binding
	Hit          bool // true if a value was found (fresh or stale)
	NeedsRefresh bool // true if expired — caller should refresh in background
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Get performs a non-blocking cache lookup. Returns stale entries with
// NeedsRefresh=true when expired; only one caller wins the refresh CAS.
func (c *Cache) Get(bindingID string) CacheGetResult {
	val, ok := c.store.Load(bindingID)
	if !ok {
		return CacheGetResult{Hit: false}
	}

	entry := val.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return CacheGetResult{Binding: entry.binding, Hit: true}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return CacheGetResult{
		Binding:      entry.binding,
		Hit:          true,
		NeedsRefresh: needsRefresh,
	}
}

// Set stores a binding with a fresh TTL. Passing nil stores a negative
// cache entry.
func (c *Cache) Set(bindingID string, b *Binding) {
	c.store.Store(bindingID, &cacheEntry{
		binding:   b,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes an entry. Called on credential updates and disconnects so
// dispatch never observes a binding the user just revoked.
func (c *Cache) Delete(bindingID string) {
	c.store.Delete(bindingID)
}
