package cache

import (
	"context"
	"sync"
	"time"
)

type memItem struct {
	v       []byte
	expires time.Time
}

func (it memItem) expired(now time.Time) bool {
	return !it.expires.IsZero() && now.After(it.expires)
}

// MemoryStore is a process-local Store. A ttl <= 0 keeps the entry until deleted.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if it.expired(s.now()) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return clone(it.v), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := memItem{v: clone(value)}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = it
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
