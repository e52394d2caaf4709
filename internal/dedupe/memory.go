package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultSize bounds the in-memory store when no size is configured
const DefaultSize = 4096

// MemoryStore keeps recent keys in an expiring LRU
type MemoryStore struct {
	cache *expirable.LRU[string, struct{}]
	mu    sync.Mutex
}

// NewMemoryStore creates an in-memory store holding at most size keys for ttl
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Seen implements Store
func (m *MemoryStore) Seen(ctx context.Context, key string) (bool, error) {
	// Get and Add are separate calls on the cache
	m.mu.Lock()
	defer m.mu.Unlock()

	// Get, unlike Contains, ignores entries past their TTL
	if _, ok := m.cache.Get(key); ok {
		return true, nil
	}
	m.cache.Add(key, struct{}{})
	return false, nil
}

// Len returns the number of unexpired keys
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Close implements Store
func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
