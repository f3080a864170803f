// Package cache provides an optional Redis-backed cache of search API
// payloads.
//
// Entries are keyed by endpoint and query parameters with the credential
// parameter removed, so changing API keys does not invalidate the cache.
// Every entry carries an expiry; Redis removes it once the TTL elapses.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key, err := cache.KeyFromTarget(target)
//	if err != nil {
//		return err
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch and store
//		_ = manager.Set(ctx, key, cache.NewEntry(payload, 24*time.Hour))
//	}
//
// # Metrics
//
//   - pmid_cache_hits_total
//   - pmid_cache_misses_total
//   - pmid_cache_errors_total{operation}
package cache
