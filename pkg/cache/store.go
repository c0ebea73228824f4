// Package cache provides an in-memory response cache with per-entry
// expiration and a stale accessor for fallback reads.
//
// Expired entries are retained until overwritten: Get refuses them, while
// GetStale returns the last-known value so callers can serve stale data when
// the upstream is unavailable. Expiration is checked at read time; there is
// no background sweep and no size-based eviction (the key space is bounded by
// distinct query-parameter combinations).
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	cachedAt  time.Time
}

// Store is a concurrency-safe key-to-value cache.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	now     func() time.Time
}

// New creates an empty Store.
func New[V any]() *Store[V] {
	return &Store[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Get returns the live value for key. Entries past their expiration are
// treated as absent.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		cacheMisses.Inc()
		var zero V
		return zero, false
	}
	if s.now().After(e.expiresAt) {
		cacheMisses.Inc()
		var zero V
		return zero, false
	}

	cacheHits.Inc()
	return e.value, true
}

// GetStale returns the last-known value for key regardless of expiration.
// It is intended only for fallback when a fresh fetch has failed.
func (s *Store[V]) GetStale(key string) (V, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	cacheStaleHits.Inc()
	return e.value, true
}

// Set stores value under key with the given TTL, overwriting any previous
// entry unconditionally.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	now := s.now()

	s.mu.Lock()
	s.entries[key] = entry[V]{
		value:     value,
		expiresAt: now.Add(ttl),
		cachedAt:  now,
	}
	size := len(s.entries)
	s.mu.Unlock()

	cacheEntries.Set(float64(size))
}

// Len returns the number of entries, expired ones included.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
