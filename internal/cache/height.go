// Package cache holds the in-process read caches. They only ever reflect
// committed block boundaries: the block processor sets them after commit and
// the resyncer rebuilds them from the store.
package cache

import (
	"sync"
)

// HeightCache holds the height of the last committed block.
type HeightCache struct {
	mu     sync.RWMutex
	height string
}

func NewHeightCache() *HeightCache {
	return &HeightCache{}
}

// Get returns "" when no block was committed yet.
func (c *HeightCache) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

func (c *HeightCache) Set(height string) {
	c.mu.Lock()
	c.height = height
	c.mu.Unlock()
}

func (c *HeightCache) Clear() {
	c.Set("")
}
