package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	l := NewLRU(LRUOpts{Size: 2, OnEvict: func(k string, _ any) { evicted = append(evicted, k) }})

	l.Put("a", 1)
	l.Put("b", 2)

	v, ok := l.Get("a") // promotes a
	require.True(t, ok)
	require.Equal(t, 1, v)

	l.Put("c", 3)
	_, ok = l.Get("b")
	require.False(t, ok)
	require.Equal(t, []string{"b"}, evicted)
	require.Equal(t, 2, l.Len())
}

func TestLRU_UpdateAndDelete(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 2})
	l.Put("a", 1)
	l.Put("a", 2)
	v, _ := l.Get("a")
	require.Equal(t, 2, v)
	require.Equal(t, 1, l.Len())

	l.Delete("a")
	l.Delete("missing")
	_, ok := l.Get("a")
	require.False(t, ok)
	require.Zero(t, l.Len())
}

func TestLRU_TTL(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLRU(LRUOpts{Now: func() time.Time { return now }})

	l.Put("k", "v", WithTTL(time.Second))
	_, ok := l.Get("k")
	require.True(t, ok)

	now = now.Add(time.Second)
	_, ok = l.Get("k")
	require.False(t, ok)
	require.Zero(t, l.Len())
}

func TestLRU_Concurrent(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 16})
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				k := fmt.Sprintf("%d-%d", w, i%32)
				l.Put(k, i)
				l.Get(k)
			}
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, l.Len(), 16)
}

func TestTypedAndNop(t *testing.T) {
	typed := NewTyped[int](NewLRU(LRUOpts{}))
	typed.Put("x", 7)
	v, ok := typed.Get("x")
	require.True(t, ok)
	require.Equal(t, 7, v)

	raw := NewLRU(LRUOpts{})
	raw.Put("s", "str")
	_, ok = NewTyped[int](raw).Get("s")
	require.False(t, ok, "type mismatch is a miss")

	nop := NewTyped[int](NewNop())
	nop.Put("x", 1)
	_, ok = nop.Get("x")
	require.False(t, ok)
	require.Zero(t, nop.Len())
}
