// Package descriptor attaches side-table state to domain values the
// providers do not own. Cache is the single keyed store; WeakCache keys it
// by object identity and evicts entries once the object is collected.
package descriptor

import "sync"

// Cache maps keys to lazily created descriptors. Exactly one descriptor
// exists per key until the key is removed.
type Cache[K comparable, D any] struct {
	mu      sync.Mutex
	entries map[K]D
	factory func(K) D
}

// New creates a Cache that builds missing descriptors with factory.
// The factory runs under the cache lock and must not call back into the
// same cache.
func New[K comparable, D any](factory func(K) D) *Cache[K, D] {
	return &Cache[K, D]{
		entries: make(map[K]D),
		factory: factory,
	}
}

// Get returns the descriptor for key, creating it on first use.
func (c *Cache[K, D]) Get(key K) D {
	d, _ := c.GetOrCreate(key, c.factory)
	return d
}

// GetOrCreate returns the descriptor for key, building it with create if
// absent. The boolean reports whether a new descriptor was stored. If create
// panics nothing is stored and a later call retries.
func (c *Cache[K, D]) GetOrCreate(key K, create func(K) D) (D, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.entries[key]; ok {
		return d, false
	}
	d := create(key)
	c.entries[key] = d
	return d, true
}

// Lookup returns the descriptor for key without creating one.
func (c *Cache[K, D]) Lookup(key K) (D, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[key]
	return d, ok
}

// Remove evicts key and returns the descriptor it held, if any.
func (c *Cache[K, D]) Remove(key K) (D, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return d, ok
}

// Len returns the number of live entries.
func (c *Cache[K, D]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Range calls fn for a snapshot of the entries until fn returns false.
func (c *Cache[K, D]) Range(fn func(K, D) bool) {
	c.mu.Lock()
	keys := make([]K, 0, len(c.entries))
	values := make([]D, 0, len(c.entries))
	for k, d := range c.entries {
		keys = append(keys, k)
		values = append(values, d)
	}
	c.mu.Unlock()

	for i := range keys {
		if !fn(keys[i], values[i]) {
			return
		}
	}
}
