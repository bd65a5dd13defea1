// Package ref provides GUID-backed handles to world objects. The host may
// destroy any referenced object on a world-thread pass, so a raw pointer held
// across ticks is a use-after-free; a Ref re-resolves through the live-object
// table once its short cache expires.
package ref

import (
	"sync"
	"sync/atomic"

	"github.com/l1jgo/playerbot/internal/guid"
)

// DefaultTTL is how long a resolved pointer may be returned without
// revalidation.
const DefaultTTL int64 = 100 // ms

// Resolver looks a GUID up in the host's live-object table. Must be safe to
// call from any goroutine. Returns nil when the object no longer exists.
type Resolver[T any] func(guid.GUID) *T

// Ref is a stable handle to one world object. Safe for concurrent use.
type Ref[T any] struct {
	mu         sync.Mutex
	guid       guid.GUID
	cached     *T
	resolvedAt int64 // monotonic ms of last resolution

	resolve Resolver[T]
	now     func() int64
	ttl     int64

	accesses atomic.Uint64
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// New builds a Ref resolving through the given table with the default TTL.
func New[T any](resolve Resolver[T], now func() int64) *Ref[T] {
	return NewWithTTL(resolve, now, DefaultTTL)
}

// NewWithTTL builds a Ref with an explicit cache TTL in milliseconds.
func NewWithTTL[T any](resolve Resolver[T], now func() int64, ttlMS int64) *Ref[T] {
	return &Ref[T]{resolve: resolve, now: now, ttl: ttlMS}
}

// Set records the object's GUID and caches the pointer with the current
// timestamp.
func (r *Ref[T]) Set(g guid.GUID, obj *T) {
	r.mu.Lock()
	r.guid = g
	r.cached = obj
	r.resolvedAt = r.now()
	r.mu.Unlock()
}

// SetGUID records the GUID and clears the cache; the next Get re-resolves.
func (r *Ref[T]) SetGUID(g guid.GUID) {
	r.mu.Lock()
	r.guid = g
	r.cached = nil
	r.resolvedAt = 0
	r.mu.Unlock()
}

// GUID returns the target GUID (possibly empty).
func (r *Ref[T]) GUID() guid.GUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guid
}

// Get returns the referenced object or nil. The cached pointer is only
// returned while its age is below the TTL; otherwise the live-object table is
// queried and the result — possibly nil — replaces the cache. Callers must
// not store the returned pointer past the current scope.
func (r *Ref[T]) Get() *T {
	r.accesses.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.guid.IsEmpty() {
		return nil
	}
	now := r.now()
	if r.cached != nil && now-r.resolvedAt < r.ttl {
		r.hits.Add(1)
		return r.cached
	}
	r.misses.Add(1)
	r.cached = r.resolve(r.guid)
	r.resolvedAt = now
	return r.cached
}

// Clear empties GUID and cache.
func (r *Ref[T]) Clear() {
	r.mu.Lock()
	r.guid = 0
	r.cached = nil
	r.resolvedAt = 0
	r.mu.Unlock()
}

// InvalidateCache forces the next Get to re-resolve.
func (r *Ref[T]) InvalidateCache() {
	r.mu.Lock()
	r.cached = nil
	r.resolvedAt = 0
	r.mu.Unlock()
}

// IsValid reports whether the reference currently resolves to a live object.
func (r *Ref[T]) IsValid() bool {
	return r.Get() != nil
}

// Stats returns access/hit/miss counters and the hit rate for diagnostics.
func (r *Ref[T]) Stats() (accesses, hits, misses uint64, hitRate float64) {
	accesses = r.accesses.Load()
	hits = r.hits.Load()
	misses = r.misses.Load()
	if accesses > 0 {
		hitRate = float64(hits) / float64(accesses)
	}
	return
}
