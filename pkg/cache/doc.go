// Package cache provides the query cache that sits in front of the people table.
//
// The cache is a time-boxed key/value store with the following properties:
//
// - Keys are SHA-256 digests of a canonical query descriptor, not record ids
// - Every entry expires after a TTL (60s by default), re-checked on every read
// - Writers invalidate the whole cache; nothing is tracked per record
// - Expired entries are removed lazily on Get and periodically by a sweeper
// - Prometheus metrics for observability
//
// Two backends implement Store: Manager keeps entries in process memory (the
// default) and RedisStore keeps them in Redis so replicas share one cache.
//
// # Basic Usage
//
//	manager := cache.NewManager[models.Person](cache.DefaultConfig(), logger)
//
//	key := cache.Query{Table: "people", Column: "email", Value: "ana@x.com"}.Key()
//
//	person, ok := manager.Get(ctx, key)
//	if !ok {
//		// Cache miss - load from storage, then
//		_ = manager.Set(ctx, key, loaded, 0)
//	}
//
// # Invalidation
//
// A read that started before a write must not repopulate the cache with what
// it read. Readers capture Generation before querying storage and populate
// with SetIfCurrent, which refuses the write once InvalidateAll has run:
//
//	gen, _ := manager.Generation(ctx)
//	loaded := load()
//	_, _ = manager.SetIfCurrent(ctx, gen, key, loaded, 0)
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - people_cache_hits_total{backend} - Cache hits
//   - people_cache_misses_total{backend} - Cache misses
//   - people_cache_entries{backend} - Stored entries
//   - people_cache_removals_total{backend,reason} - Removed entries
//   - people_cache_invalidations_total{backend} - Whole-cache invalidations
//   - people_cache_errors_total{backend,operation} - Backend errors
package cache
