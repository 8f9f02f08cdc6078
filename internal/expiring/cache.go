// Package expiring implements a key/value store whose entries expire a fixed
// time after they were last written.
package expiring

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// NoExpiry disables expiration.
const NoExpiry time.Duration = 0

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache is a TTL key/value store.
//
// Entries are kept in write order, so expiry scans stop at the first fresh
// entry. Cache is not safe for concurrent use; every caller runs on the work
// queue that owns it.
type Cache[K comparable, V any] struct {
	ttl     time.Duration
	now     func() time.Time
	entries *orderedmap.OrderedMap[K, entry[V]]
}

// New creates a cache with the given ttl. now supplies the current time; nil
// means time.Now.
func New[K comparable, V any](ttl time.Duration, now func() time.Time) *Cache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[K, V]{
		ttl:     ttl,
		now:     now,
		entries: orderedmap.New[K, entry[V]](),
	}
}

// Set stores value under key and refreshes its timestamp.
func (c *Cache[K, V]) Set(key K, value V) {
	if _, present := c.entries.Set(key, entry[V]{value: value, insertedAt: c.now()}); present {
		_ = c.entries.MoveToBack(key)
	}
}

// Get returns the value stored under key unless it is older than the ttl.
// Stale entries are left in place until RemoveExpired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	e, ok := c.entries.Get(key)
	if !ok || c.expired(e, c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Remove deletes key if present.
func (c *Cache[K, V]) Remove(key K) {
	c.entries.Delete(key)
}

// RemoveExpired purges every entry older than the ttl and returns how many
// were removed.
func (c *Cache[K, V]) RemoveExpired() int {
	if c.ttl == NoExpiry {
		return 0
	}
	now := c.now()
	removed := 0
	for pair := c.entries.Oldest(); pair != nil; {
		if !c.expired(pair.Value, now) {
			break
		}
		next := pair.Next()
		c.entries.Delete(pair.Key)
		removed++
		pair = next
	}
	return removed
}

// RemoveAll empties the cache.
func (c *Cache[K, V]) RemoveAll() {
	c.entries = orderedmap.New[K, entry[V]]()
}

// Len counts stored entries, including stale ones not yet purged.
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

func (c *Cache[K, V]) expired(e entry[V], now time.Time) bool {
	return c.ttl != NoExpiry && now.Sub(e.insertedAt) > c.ttl
}
