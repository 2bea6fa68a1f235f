package invoke

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/NamazuStudios/elements-sub015/core/cache"
	"github.com/NamazuStudios/elements-sub015/core/sf"
)

// MethodKey identifies a method overload. Keys compare structurally.
type MethodKey struct {
	Type      string
	Method    string
	Signature string
}

func KeyFor(inv *Invocation) MethodKey {
	return MethodKey{Type: inv.Type, Method: inv.Method, Signature: strings.Join(inv.Parameters, ",")}
}

func (k MethodKey) String() string {
	return k.Type + "#" + k.Method + "(" + k.Signature + ")"
}

// cacheKey encodes k without ambiguity: Type and Method are length
// prefixed, so no name can reach into a neighbouring part.
func (k MethodKey) cacheKey() string {
	var b strings.Builder
	b.Grow(len(k.Type) + len(k.Method) + len(k.Signature) + 8)
	b.WriteString(strconv.Itoa(len(k.Type)))
	b.WriteByte(':')
	b.WriteString(k.Type)
	b.WriteString(strconv.Itoa(len(k.Method)))
	b.WriteByte(':')
	b.WriteString(k.Method)
	b.WriteString(k.Signature)
	return b.String()
}

// Processor performs calls of one resolved method overload.
type Processor struct {
	Key    MethodKey
	method Method
}

func (p *Processor) Strategy() Strategy { return p.method.Strategy }

// Invoke calls the method on target. A panic in the method is returned as
// an error wrapping ErrPanic.
func (p *Processor) Invoke(ctx context.Context, target any, args Args) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v\n%s", ErrPanic, p.Key, r, debug.Stack())
		}
	}()
	return p.method.Call(ctx, target, args)
}

type MethodCacheOpts struct {
	Registry *Registry
	// Size bounds the number of cached processors; a negative Size
	// disables caching.
	Size int
	// TTL expires cached processors; zero keeps them until evicted.
	TTL     time.Duration
	Metrics DispatchMetrics
	// Now is the clock for TTL checks.
	Now func() time.Time
}

// MethodCache resolves method keys to processors. Each processor is built
// once; concurrent first lookups of a key share one build. Entries are
// evicted least-recently-used.
type MethodCache struct {
	registry *Registry
	procs    *cache.Typed[*Processor]
	builds   *sf.Group[*Processor]
	ttl      time.Duration
	metrics  DispatchMetrics
}

func NewMethodCache(opts MethodCacheOpts) *MethodCache {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopDispatchMetrics()
	}
	var c cache.Cache = cache.NewNop()
	if opts.Size >= 0 {
		m := opts.Metrics
		c = cache.NewLRU(cache.LRUOpts{
			Size:    opts.Size,
			OnEvict: func(string, any) { m.MethodCacheEvicted() },
			Now:     opts.Now,
		})
	}
	return &MethodCache{
		registry: opts.Registry,
		procs:    cache.NewTyped[*Processor](c),
		builds:   sf.New[*Processor](),
		ttl:      opts.TTL,
		metrics:  opts.Metrics,
	}
}

func (c *MethodCache) Registry() *Registry { return c.registry }

// Len returns the number of cached processors.
func (c *MethodCache) Len() int { return c.procs.Len() }

// Resolve returns the processor for key. Failures are ErrNoSuchType,
// ErrNoSuchMethod or ErrAmbiguousMethod and are not cached.
func (c *MethodCache) Resolve(key MethodKey) (*Processor, error) {
	k := key.cacheKey()
	if p, ok := c.procs.Get(k); ok {
		c.metrics.MethodCacheLookup(true)
		return p, nil
	}
	c.metrics.MethodCacheLookup(false)

	p, _, err := c.builds.Do(k, func() (*Processor, error) {
		if p, ok := c.procs.Get(k); ok {
			return p, nil
		}
		m, err := c.registry.lookup(key)
		if err != nil {
			return nil, err
		}
		p := &Processor{Key: key, method: m}
		c.procs.Put(k, p, cache.WithTTL(c.ttl))
		return p, nil
	})
	return p, err
}
