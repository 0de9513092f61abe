package cache

import (
	"context"
	"sync"

	"assessd/pkg/domain"
)

// MemoryTouchCache is a process-local TouchCache. Suitable for a single
// instance; multi-instance deployments use RedisTouchCache.
type MemoryTouchCache struct {
	mu      sync.Mutex
	entries map[string]domain.EvidenceTiming
}

func NewMemoryTouchCache() *MemoryTouchCache {
	return &MemoryTouchCache{entries: make(map[string]domain.EvidenceTiming)}
}

func (c *MemoryTouchCache) Get(ctx context.Context, id string) (domain.EvidenceTiming, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[id]
	return t, ok, nil
}

func (c *MemoryTouchCache) Put(ctx context.Context, id string, t domain.EvidenceTiming) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = t
	return nil
}

func (c *MemoryTouchCache) Touch(ctx context.Context, id string, ts int64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[id]
	if !ok {
		return 0, false, nil
	}
	prev := t.Touched
	t.Touched = ts
	c.entries[id] = t
	return prev, true, nil
}

func (c *MemoryTouchCache) Drop(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

var _ TouchCache = (*MemoryTouchCache)(nil)
