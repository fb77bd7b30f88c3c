// Package virattr memoizes virtual attribute values.
//
// Virtual attributes live on external resources and are fetched through a
// live connector read. The cache bounds how often those reads happen:
// entries expire after a per-cache TTL or when the owning resource's
// configuration changes (explicit invalidation). Nothing else refreshes an
// entry — a propagated write to a different attribute leaves cached values
// stale until expiry, which is the intended trade-off.
package virattr

import (
	"context"
	"sync"
	"time"
)

// Loader performs the live connector read for one virtual attribute.
type Loader func(ctx context.Context) ([]string, error)

type key struct {
	resource    string
	objectClass string
	subjectKey  string
	attr        string
}

type entry struct {
	values    []string
	expiresAt time.Time
}

// Cache is a TTL-bound memo of virtual attribute values, keyed by
// (resource, objectClass, subjectKey, attribute).
//
// Safe for concurrent use. The cache is in-memory only: losing it on
// restart costs extra live reads, never correctness.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[key]entry
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow overrides the cache's time source. Tests use it to step through
// TTL expiry deterministically.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache whose entries live for ttl after each load.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		ttl:     ttl,
		entries: make(map[key]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached values when the entry is live, otherwise invokes
// loader, stores the result with a fresh TTL, and returns it. A failed load
// caches nothing.
func (c *Cache) Get(ctx context.Context, resource, objectClass, subjectKey, attr string, loader Loader) ([]string, error) {
	k := key{resource: resource, objectClass: objectClass, subjectKey: subjectKey, attr: attr}

	c.mu.Lock()
	if e, ok := c.entries[k]; ok && c.now().Before(e.expiresAt) {
		values := append([]string(nil), e.values...)
		c.mu.Unlock()
		return values, nil
	}
	c.mu.Unlock()

	// Load outside the lock: connector reads can be slow and must not
	// serialize unrelated cache traffic.
	values, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[k] = entry{
		values:    append([]string(nil), values...),
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return values, nil
}

// Invalidate drops every entry for the named resource. Called when the
// resource's connector configuration changes.
func (c *Cache) Invalidate(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.resource == resource {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of live and expired entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
