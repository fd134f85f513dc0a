// Package cache memoizes generated course reports.
//
// Entries never expire and are never invalidated: once a course's CSV has been
// generated, later requests get the same bytes for the lifetime of the store,
// even when progress in Canvas has changed since. Two first requests for the
// same course may both generate the report; the last write wins.
//
// # Backends
//
// MemoryStore keeps entries in the process. RedisStore shares them between
// replicas and survives restarts:
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore(redisClient)
//
//	entry, err := store.Get(ctx, cache.CSVKey("42"))
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// generate and store.Set(ctx, key, cache.NewEntry(csv))
//	}
//
// # Metrics
//
//   - progress_cache_hits_total{layer} - Cache hits
//   - progress_cache_misses_total{layer} - Cache misses
//   - progress_cache_bytes_written_total{layer} - Report bytes written to the cache
//   - progress_cache_errors_total{operation} - Backend errors
package cache
