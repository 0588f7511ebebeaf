package cache

import (
	"context"
	"sync"
	"time"

	"salestrack/internal/domain"
)

// StoreCache holds store reference records keyed by store code.
type StoreCache interface {
	Get(ctx context.Context, code string) (*domain.Store, bool, error)
	Set(ctx context.Context, value domain.Store, ttl time.Duration) error
}

type NoopStoreCache struct{}

func (NoopStoreCache) Get(_ context.Context, _ string) (*domain.Store, bool, error) {
	return nil, false, nil
}

func (NoopStoreCache) Set(_ context.Context, _ domain.Store, _ time.Duration) error {
	return nil
}

type entry struct {
	value     domain.Store
	expiresAt time.Time
}

// MemoryStoreCache is a process-local StoreCache.
type MemoryStoreCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStoreCache() *MemoryStoreCache {
	return &MemoryStoreCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *MemoryStoreCache) Get(_ context.Context, code string) (*domain.Store, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[code]
	if !ok || (!e.expiresAt.IsZero() && c.now().After(e.expiresAt)) {
		return nil, false, nil
	}
	value := e.value
	return &value, true, nil
}

func (c *MemoryStoreCache) Set(_ context.Context, value domain.Store, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[value.Code] = e
	return nil
}
