package descriptor

import (
	"runtime"
	"weak"
)

// WeakCache keys descriptors by the identity of *T without keeping the
// object alive. When the object becomes unreachable its entry is evicted by
// a runtime cleanup. Descriptors must not hold a strong reference to their
// key, or the key never becomes unreachable; use weak.Make instead.
type WeakCache[T any, D any] struct {
	cache   *Cache[weak.Pointer[T], D]
	factory func(*T) D
}

// NewWeak creates a WeakCache whose missing descriptors are built by
// factory. The factory receives the live key.
func NewWeak[T any, D any](factory func(*T) D) *WeakCache[T, D] {
	return &WeakCache[T, D]{
		cache:   New[weak.Pointer[T], D](nil),
		factory: factory,
	}
}

// Get returns the descriptor for key, creating it on first use. A nil key
// yields the zero descriptor and is never cached.
func (w *WeakCache[T, D]) Get(key *T) D {
	if key == nil {
		var zero D
		return zero
	}

	wp := weak.Make(key)
	d, created := w.cache.GetOrCreate(wp, func(weak.Pointer[T]) D {
		return w.factory(key)
	})
	if created {
		runtime.AddCleanup(key, w.evict, wp)
	}
	return d
}

// Lookup returns the descriptor for key without creating one.
func (w *WeakCache[T, D]) Lookup(key *T) (D, bool) {
	if key == nil {
		var zero D
		return zero, false
	}
	return w.cache.Lookup(weak.Make(key))
}

// Remove evicts key before it is collected.
func (w *WeakCache[T, D]) Remove(key *T) (D, bool) {
	if key == nil {
		var zero D
		return zero, false
	}
	return w.cache.Remove(weak.Make(key))
}

// Len returns the number of entries not yet evicted.
func (w *WeakCache[T, D]) Len() int {
	return w.cache.Len()
}

func (w *WeakCache[T, D]) evict(wp weak.Pointer[T]) {
	w.cache.Remove(wp)
}
