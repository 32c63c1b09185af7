// Package cache provides a generic TTL cache with in-memory and Redis
// backends, and a Loader that collapses concurrent misses.
//
// The dispatch bearer-token gate uses it to remember token verdicts:
// a Memory cache for a single process, a Redis cache when several
// processes share the verification load.
//
//	verdicts := cache.NewLoader[string](cache.NewMemory[string](
//	    cache.WithDefaultTTL(5*time.Minute),
//	    cache.WithMaxEntries(10_000),
//	))
package cache
