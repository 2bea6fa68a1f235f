// Package cache provides a small key-value cache abstraction.
//
// [LRU] is the bounded, mutex-guarded implementation; capacity eviction
// replaces any reliance on the garbage collector to drop stale entries.
// [Nop] disables caching. [Typed] wraps either with a concrete value type:
//
//	procs := cache.NewTyped[*Processor](cache.NewLRU(cache.LRUOpts{Size: 256}))
//	procs.Put(key, p)
//	if p, ok := procs.Get(key); ok {
//	    // ...
//	}
//
// Entries put with [WithTTL] expire lazily on the next access.
package cache
