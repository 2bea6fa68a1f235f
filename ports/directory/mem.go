package directory

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	data    []byte
	expires time.Time
}

// MemStore is an in-process [Store]. Expired keys are dropped on access.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]memEntry
	now  func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]memEntry{}, now: time.Now}
}

func (m *MemStore) Put(_ context.Context, key string, data []byte, opts PutOptions) error {
	e := memEntry{data: append([]byte(nil), data...)}
	if opts.TTL > 0 {
		e.expires = m.now().Add(opts.TTL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = e
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.data...), nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// NewMemory returns a directory over a fresh [MemStore].
func NewMemory() *StoreDirectory {
	return NewStoreDirectory(StoreDirectoryOpts{Store: NewMemStore()})
}

var _ Store = (*MemStore)(nil)
