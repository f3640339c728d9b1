package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const backendMemory = "memory"

// Manager is the in-process cache backend.
//
// Entries live in a map guarded by a RWMutex. Expiry is checked on every Get;
// nothing is returned once its deadline has passed, whether or not a sweep
// has run.
type Manager[V any] struct {
	mu         sync.RWMutex
	entries    map[string]*Entry[V]
	generation uint64

	hits   atomic.Uint64
	misses atomic.Uint64

	config Config
	logger zerolog.Logger
}

var _ Store[struct{}] = (*Manager[struct{}])(nil)

// NewManager creates an empty in-memory cache.
func NewManager[V any](cfg Config, logger zerolog.Logger) *Manager[V] {
	return &Manager[V]{
		entries: make(map[string]*Entry[V]),
		config:  cfg.withDefaults(),
		logger:  logger.With().Str("backend", backendMemory).Logger(),
	}
}

// Get retrieves a value by key.
// Returns false if the key doesn't exist or the entry is expired; an expired
// entry is deleted before returning.
func (m *Manager[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	now := m.config.Now()

	m.mu.RLock()
	entry, ok := m.entries[key]
	if ok && !entry.IsExpired(now) {
		value := entry.Value
		m.mu.RUnlock()

		m.hits.Add(1)
		CacheHits.WithLabelValues(backendMemory).Inc()
		return value, true
	}
	m.mu.RUnlock()

	if ok {
		// Upgrade to the write lock. The key may have been rewritten in
		// between, so only delete what is still expired.
		m.mu.Lock()
		if current, found := m.entries[key]; found && current.IsExpired(now) {
			delete(m.entries, key)
			CacheRemovals.WithLabelValues(backendMemory, "expired").Inc()
			m.updateSizeLocked()
			m.logger.Debug().Str("key", shortKey(key)).Msg("Removed expired entry on read")
		}
		m.mu.Unlock()
	}

	m.misses.Add(1)
	CacheMisses.WithLabelValues(backendMemory).Inc()
	return zero, false
}

// Set stores value under key with expiry now + ttl, replacing any previous entry.
func (m *Manager[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.storeLocked(key, value, ttl)
	return nil
}

// SetIfCurrent stores value only if the cache generation still equals generation.
func (m *Manager[V]) SetIfCurrent(_ context.Context, generation uint64, key string, value V, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation {
		m.logger.Debug().
			Str("key", shortKey(key)).
			Uint64("observed", generation).
			Uint64("current", m.generation).
			Msg("Skipped populate after invalidation")
		return false, nil
	}

	m.storeLocked(key, value, ttl)
	return true, nil
}

func (m *Manager[V]) storeLocked(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	now := m.config.Now()
	m.entries[key] = &Entry[V]{
		Value:    value,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
	m.updateSizeLocked()

	m.logger.Debug().
		Str("key", shortKey(key)).
		Dur("ttl", ttl).
		Msg("Cached entry")
}

// Generation returns the invalidation counter.
func (m *Manager[V]) Generation(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation, nil
}

// Evict removes a single entry.
func (m *Manager[V]) Evict(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	CacheRemovals.WithLabelValues(backendMemory, "evicted").Inc()
	m.updateSizeLocked()
	return true, nil
}

// InvalidateAll drops every entry and bumps the generation.
// The map is swapped under the write lock, so a concurrent Get observes either
// the old contents or the empty cache.
func (m *Manager[V]) InvalidateAll(_ context.Context) (int, error) {
	m.mu.Lock()
	removed := len(m.entries)
	m.entries = make(map[string]*Entry[V])
	m.generation++
	generation := m.generation
	m.updateSizeLocked()
	m.mu.Unlock()

	CacheInvalidations.WithLabelValues(backendMemory).Inc()
	CacheRemovals.WithLabelValues(backendMemory, "invalidated").Add(float64(removed))

	m.logger.Debug().
		Int("removed", removed).
		Uint64("generation", generation).
		Msg("Invalidated cache")

	return removed, nil
}

// SweepExpired removes all expired entries. O(n) in the number of entries.
func (m *Manager[V]) SweepExpired(_ context.Context) (int, error) {
	now := m.config.Now()

	m.mu.Lock()
	removed := 0
	for key, entry := range m.entries {
		if entry.IsExpired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	if removed > 0 {
		m.updateSizeLocked()
	}
	m.mu.Unlock()

	if removed > 0 {
		CacheRemovals.WithLabelValues(backendMemory, "swept").Add(float64(removed))
	}
	return removed, nil
}

// Stats returns size, key prefixes and counters.
func (m *Manager[V]) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, shortKey(key))
	}
	generation := m.generation
	m.mu.RUnlock()

	sort.Strings(keys)

	return Stats{
		Backend:    backendMemory,
		Size:       len(keys),
		Keys:       keys,
		Hits:       m.hits.Load(),
		Misses:     m.misses.Load(),
		Generation: generation,
	}, nil
}

// Len returns the number of stored entries, including expired ones not yet removed.
func (m *Manager[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager[V]) updateSizeLocked() {
	CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
}
