package cache

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultTTL is the lifetime of an entry when Set is called with ttl <= 0.
	DefaultTTL = 60 * time.Second

	// DefaultSweepInterval is how often RunSweeper scans for expired entries.
	DefaultSweepInterval = 30 * time.Second
)

var (
	// ErrInvalidEntry indicates a stored entry could not be decoded
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the contract shared by every cache backend.
//
// Absence is never an error: Get reports it through its boolean. Errors are
// reserved for backend faults, and callers treat them as a cache miss.
type Store[V any] interface {
	// Get returns the value for key if present and not expired. An expired
	// entry is removed as a side effect.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores value under key, expiring after ttl (DefaultTTL if ttl <= 0).
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// SetIfCurrent behaves like Set but only if no InvalidateAll happened
	// since generation was observed. It reports whether the value was stored.
	SetIfCurrent(ctx context.Context, generation uint64, key string, value V, ttl time.Duration) (bool, error)

	// Generation returns the number of InvalidateAll calls so far.
	Generation(ctx context.Context) (uint64, error)

	// Evict removes key and reports whether it was present.
	Evict(ctx context.Context, key string) (bool, error)

	// InvalidateAll removes every entry and returns how many were removed.
	InvalidateAll(ctx context.Context) (int, error)

	// SweepExpired removes expired entries and returns how many were removed.
	SweepExpired(ctx context.Context) (int, error)

	// Stats returns a point-in-time view of the cache.
	Stats(ctx context.Context) (Stats, error)
}

// Stats is the introspection view of a cache.
type Stats struct {
	// Backend names the store implementation ("memory" or "redis")
	Backend string `json:"backend"`

	// Size is the number of stored entries, expired ones included until removed
	Size int `json:"size"`

	// Keys are key prefixes of the stored entries, sorted
	Keys []string `json:"keys"`

	// Hits and Misses count Get outcomes since the store was created
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`

	// Generation is the invalidation counter
	Generation uint64 `json:"generation"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config holds cache configuration shared by the backends.
type Config struct {
	// DefaultTTL applies when Set is called with ttl <= 0
	DefaultTTL time.Duration

	// Now is the clock used for expiry decisions (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: DefaultTTL,
		Now:        time.Now,
	}
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
