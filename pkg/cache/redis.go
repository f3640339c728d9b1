package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	backendRedis = "redis"

	// DefaultRedisPrefix namespaces every key the store writes.
	DefaultRedisPrefix = "people:cache"

	scanBatch = 100
)

// RedisStore is a cache backend on Redis, for deployments that run several
// replicas and want them to share one cache.
//
// Data keys embed the generation: <prefix>:<generation>:<key>. InvalidateAll
// is a single INCR of <prefix>:generation, which atomically hides every older
// key; the old keys are then deleted on a best-effort basis and otherwise
// expire through their PX TTL.
type RedisStore[V any] struct {
	redis  *redis.Client
	prefix string
	config Config
	logger zerolog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ Store[struct{}] = (*RedisStore[struct{}])(nil)

// NewRedisStore creates a Redis-backed cache. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore[V any](redisClient *redis.Client, prefix string, cfg Config, logger zerolog.Logger) *RedisStore[V] {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore[V]{
		redis:  redisClient,
		prefix: strings.TrimSuffix(prefix, ":"),
		config: cfg.withDefaults(),
		logger: logger.With().Str("backend", backendRedis).Logger(),
	}
}

func (r *RedisStore[V]) generationKey() string {
	return r.prefix + ":generation"
}

func (r *RedisStore[V]) dataKey(generation uint64, key string) string {
	return fmt.Sprintf("%s:%d:%s", r.prefix, generation, key)
}

// keyGeneration extracts the generation from a data key.
func (r *RedisStore[V]) keyGeneration(dataKey string) (uint64, bool) {
	rest, ok := strings.CutPrefix(dataKey, r.prefix+":")
	if !ok {
		return 0, false
	}
	genStr, _, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, false
	}
	gen, err := strconv.ParseUint(genStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

// Ping checks the Redis connection.
func (r *RedisStore[V]) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

// Generation returns the invalidation counter stored in Redis (0 if unset).
func (r *RedisStore[V]) Generation(ctx context.Context) (uint64, error) {
	gen, err := r.redis.Get(ctx, r.generationKey()).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// Get retrieves a value by key. Redis faults are logged and reported as a miss.
func (r *RedisStore[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	gen, err := r.Generation(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Cache get failed, treating as miss")
		r.miss()
		return zero, false
	}

	dataKey := r.dataKey(gen, key)
	data, err := r.redis.Get(ctx, dataKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			CacheErrors.WithLabelValues(backendRedis, "get").Inc()
			r.logger.Warn().Err(err).Str("key", shortKey(key)).Msg("Cache get failed, treating as miss")
		}
		r.miss()
		return zero, false
	}

	var entry Entry[V]
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		r.logger.Warn().Err(fmt.Errorf("%w: %v", ErrInvalidEntry, err)).Str("key", shortKey(key)).Msg("Dropping undecodable entry")
		_ = r.redis.Del(ctx, dataKey).Err()
		r.miss()
		return zero, false
	}

	if entry.IsExpired(r.config.Now()) {
		// Redis normally expires the key first; this covers clock skew.
		_ = r.redis.Del(ctx, dataKey).Err()
		CacheRemovals.WithLabelValues(backendRedis, "expired").Inc()
		r.miss()
		return zero, false
	}

	r.hits.Add(1)
	CacheHits.WithLabelValues(backendRedis).Inc()
	return entry.Value, true
}

// Set stores value under key in the current generation.
func (r *RedisStore[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	gen, err := r.Generation(ctx)
	if err != nil {
		return err
	}

	data, ttl, err := r.encode(value, ttl)
	if err != nil {
		return err
	}

	if err := r.redis.Set(ctx, r.dataKey(gen, key), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// SetIfCurrent stores value only while the generation key still holds generation.
// The check and the write run in one WATCH/MULTI transaction.
func (r *RedisStore[V]) SetIfCurrent(ctx context.Context, generation uint64, key string, value V, ttl time.Duration) (bool, error) {
	data, ttl, err := r.encode(value, ttl)
	if err != nil {
		return false, err
	}

	stored := false
	err = r.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, r.generationKey()).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.dataKey(generation, key), data, ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, r.generationKey())

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// Generation moved while we were watching it.
			return false, nil
		}
		CacheErrors.WithLabelValues(backendRedis, "set").Inc()
		return false, fmt.Errorf("redis set if current: %w", err)
	}
	return stored, nil
}

func (r *RedisStore[V]) encode(value V, ttl time.Duration) ([]byte, time.Duration, error) {
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}

	now := r.config.Now()
	entry := Entry[V]{
		Value:    value,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "set").Inc()
		return nil, 0, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, ttl, nil
}

// Evict removes a single entry from the current generation.
func (r *RedisStore[V]) Evict(ctx context.Context, key string) (bool, error) {
	gen, err := r.Generation(ctx)
	if err != nil {
		return false, err
	}

	n, err := r.redis.Del(ctx, r.dataKey(gen, key)).Result()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return false, fmt.Errorf("redis del: %w", err)
	}
	if n > 0 {
		CacheRemovals.WithLabelValues(backendRedis, "evicted").Inc()
	}
	return n > 0, nil
}

// InvalidateAll bumps the generation and deletes keys of older generations.
// Visibility switches at the INCR; the returned count covers the keys the
// cleanup managed to delete.
func (r *RedisStore[V]) InvalidateAll(ctx context.Context) (int, error) {
	gen, err := r.redis.Incr(ctx, r.generationKey()).Uint64()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "invalidate").Inc()
		return 0, fmt.Errorf("redis incr generation: %w", err)
	}
	CacheInvalidations.WithLabelValues(backendRedis).Inc()

	removed, err := r.deleteOlderThan(ctx, gen)
	if err != nil {
		// Old generations are already invisible and expire on their own.
		r.logger.Warn().Err(err).Uint64("generation", gen).Msg("Cache cleanup after invalidation incomplete")
	}
	CacheRemovals.WithLabelValues(backendRedis, "invalidated").Add(float64(removed))

	r.logger.Debug().
		Int("removed", removed).
		Uint64("generation", gen).
		Msg("Invalidated cache")

	return removed, nil
}

// SweepExpired deletes keys left behind by older generations. Expiry of
// current keys is handled by Redis itself.
func (r *RedisStore[V]) SweepExpired(ctx context.Context) (int, error) {
	gen, err := r.Generation(ctx)
	if err != nil {
		return 0, err
	}

	removed, err := r.deleteOlderThan(ctx, gen)
	if removed > 0 {
		CacheRemovals.WithLabelValues(backendRedis, "swept").Add(float64(removed))
	}
	return removed, err
}

func (r *RedisStore[V]) deleteOlderThan(ctx context.Context, generation uint64) (int, error) {
	var stale []string
	err := r.scan(ctx, r.prefix+":*", func(dataKey string) {
		if gen, ok := r.keyGeneration(dataKey); ok && gen < generation {
			stale = append(stale, dataKey)
		}
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return 0, fmt.Errorf("redis scan: %w", err)
	}

	removed := 0
	for start := 0; start < len(stale); start += scanBatch {
		end := min(start+scanBatch, len(stale))
		n, err := r.redis.Del(ctx, stale[start:end]...).Result()
		removed += int(n)
		if err != nil {
			CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
			return removed, fmt.Errorf("redis del: %w", err)
		}
	}
	return removed, nil
}

// Stats lists the keys of the current generation.
func (r *RedisStore[V]) Stats(ctx context.Context) (Stats, error) {
	gen, err := r.Generation(ctx)
	if err != nil {
		return Stats{}, err
	}

	prefix := r.dataKey(gen, "")
	keys := []string{}
	err = r.scan(ctx, prefix+"*", func(dataKey string) {
		keys = append(keys, shortKey(strings.TrimPrefix(dataKey, prefix)))
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "stats").Inc()
		return Stats{}, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	CacheEntries.WithLabelValues(backendRedis).Set(float64(len(keys)))

	return Stats{
		Backend:    backendRedis,
		Size:       len(keys),
		Keys:       keys,
		Hits:       r.hits.Load(),
		Misses:     r.misses.Load(),
		Generation: gen,
	}, nil
}

func (r *RedisStore[V]) scan(ctx context.Context, pattern string, fn func(string)) error {
	iter := r.redis.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		fn(iter.Val())
	}
	return iter.Err()
}

func (r *RedisStore[V]) miss() {
	r.misses.Add(1)
	CacheMisses.WithLabelValues(backendRedis).Inc()
}
