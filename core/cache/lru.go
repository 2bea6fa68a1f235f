package cache

import (
	"container/list"
	"sync"
	"time"
)

const DefaultLRUSize = 1024

type LRUOpts struct {
	// Size bounds the number of entries; DefaultLRUSize when <= 0.
	Size int
	// OnEvict is called, outside the lock, for entries dropped by capacity.
	OnEvict func(key string, val any)
	// Now is the clock used for TTL checks.
	Now func() time.Time
}

type lruEntry struct {
	key     string
	val     any
	expires time.Time
}

// LRU is a bounded least-recently-used cache, safe for concurrent use.
// Expired entries are dropped lazily on access.
type LRU struct {
	mu      sync.Mutex
	size    int
	ll      *list.List
	items   map[string]*list.Element
	onEvict func(string, any)
	now     func() time.Time
}

func NewLRU(opts LRUOpts) *LRU {
	if opts.Size <= 0 {
		opts.Size = DefaultLRUSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LRU{
		size:    opts.Size,
		ll:      list.New(),
		items:   make(map[string]*list.Element, opts.Size),
		onEvict: opts.OnEvict,
		now:     opts.Now,
	}
}

func (l *LRU) Get(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ele, ok := l.items[key]
	if !ok {
		return nil, false
	}
	e := ele.Value.(*lruEntry)
	if !e.expires.IsZero() && !l.now().Before(e.expires) {
		l.removeElement(ele)
		return nil, false
	}
	l.ll.MoveToFront(ele)
	return e.val, true
}

func (l *LRU) Put(key string, val any, opts ...PutOption) {
	var po PutOptions
	for _, o := range opts {
		o(&po)
	}
	var expires time.Time
	if po.TTL > 0 {
		expires = l.now().Add(po.TTL)
	}

	l.mu.Lock()
	if ele, ok := l.items[key]; ok {
		e := ele.Value.(*lruEntry)
		e.val, e.expires = val, expires
		l.ll.MoveToFront(ele)
		l.mu.Unlock()
		return
	}
	l.items[key] = l.ll.PushFront(&lruEntry{key: key, val: val, expires: expires})

	var evicted *lruEntry
	if l.ll.Len() > l.size {
		if last := l.ll.Back(); last != nil {
			evicted = last.Value.(*lruEntry)
			l.removeElement(last)
		}
	}
	l.mu.Unlock()

	if evicted != nil && l.onEvict != nil {
		l.onEvict(evicted.key, evicted.val)
	}
}

func (l *LRU) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ele, ok := l.items[key]; ok {
		l.removeElement(ele)
	}
}

func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ll.Len()
}

func (l *LRU) removeElement(ele *list.Element) {
	l.ll.Remove(ele)
	delete(l.items, ele.Value.(*lruEntry).key)
}

var _ Cache = (*LRU)(nil)
