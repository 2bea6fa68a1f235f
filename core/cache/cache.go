package cache

import "time"

type PutOptions struct {
	TTL time.Duration
}

type PutOption func(*PutOptions)

// WithTTL expires the entry after ttl. Zero means no expiry.
func WithTTL(ttl time.Duration) PutOption {
	return func(o *PutOptions) { o.TTL = ttl }
}

// Cache is a string-keyed cache of arbitrary values.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, val any, opts ...PutOption)
	Delete(key string)
	Len() int
}

// Typed is a type-safe view over a [Cache].
type Typed[T any] struct {
	c Cache
}

func NewTyped[T any](c Cache) *Typed[T] { return &Typed[T]{c: c} }

// Get returns the cached value. A value of another type counts as a miss.
func (t *Typed[T]) Get(key string) (out T, ok bool) {
	v, ok := t.c.Get(key)
	if !ok {
		return out, false
	}
	out, ok = v.(T)
	return out, ok
}

func (t *Typed[T]) Put(key string, val T, opts ...PutOption) { t.c.Put(key, val, opts...) }
func (t *Typed[T]) Delete(key string)                        { t.c.Delete(key) }
func (t *Typed[T]) Len() int                                 { return t.c.Len() }
