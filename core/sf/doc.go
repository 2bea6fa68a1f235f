// Package sf is a typed wrapper around golang.org/x/sync/singleflight.
//
// The method cache uses it so that concurrent first calls for the same
// method key build the processor exactly once:
//
//	p, _, err := builds.Do(key.String(), func() (*Processor, error) {
//	    return registry.build(key)
//	})
package sf
