package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrPriceNotFound is returned for markets without a cached oracle price.
// Callers treat it as a hard error; the cache never reads through.
var ErrPriceNotFound = errors.New("oracle price not cached")

// PriceCache maps market id to the latest committed oracle price.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[uint32]decimal.Decimal
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[uint32]decimal.Decimal)}
}

func (c *PriceCache) Get(marketID uint32) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[marketID]
	if !ok {
		return decimal.Zero, fmt.Errorf("market %d: %w", marketID, ErrPriceNotFound)
	}
	return p, nil
}

func (c *PriceCache) Set(marketID uint32, price decimal.Decimal) {
	c.mu.Lock()
	c.prices[marketID] = price
	c.mu.Unlock()
}

// Replace swaps the whole content, as loaded by a resync.
func (c *PriceCache) Replace(prices map[uint32]decimal.Decimal) {
	next := make(map[uint32]decimal.Decimal, len(prices))
	for k, v := range prices {
		next[k] = v
	}
	c.mu.Lock()
	c.prices = next
	c.mu.Unlock()
}

func (c *PriceCache) Clear() {
	c.Replace(nil)
}

// Snapshot returns a copy of every cached price.
func (c *PriceCache) Snapshot() map[uint32]decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint32]decimal.Decimal, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}
