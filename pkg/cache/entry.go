package cache

import (
	"time"
)

// Entry is a cached value together with its lifetime.
type Entry[V any] struct {
	// Value is the cached payload
	Value V `json:"value"`

	// CachedAt is when the entry was stored
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry stops being valid
	Expires time.Time `json:"expires"`
}

// IsExpired reports whether the entry is no longer valid at now.
// An entry is valid only while now is strictly before Expires.
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// TTL returns the time left until expiration at now.
// Returns 0 if already expired.
func (e *Entry[V]) TTL(now time.Time) time.Duration {
	ttl := e.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
