package cache

import (
	"PerpIndexer/internal/model"
	"sync"
)

type candleKey struct {
	ticker     string
	resolution model.CandleResolution
}

// CandleCache holds the latest committed candle per (ticker, resolution).
type CandleCache struct {
	mu      sync.RWMutex
	candles map[candleKey]model.Candle
}

func NewCandleCache() *CandleCache {
	return &CandleCache{candles: make(map[candleKey]model.Candle)}
}

// Get returns false when the market has no candle at this resolution.
func (c *CandleCache) Get(ticker string, resolution model.CandleResolution) (model.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	candle, ok := c.candles[candleKey{ticker, resolution}]
	return candle, ok
}

func (c *CandleCache) Set(candle model.Candle) {
	c.mu.Lock()
	c.candles[candleKey{candle.Ticker, candle.Resolution}] = candle
	c.mu.Unlock()
}

// Replace swaps the whole content, as loaded by a resync.
func (c *CandleCache) Replace(candles []model.Candle) {
	next := make(map[candleKey]model.Candle, len(candles))
	for _, candle := range candles {
		next[candleKey{candle.Ticker, candle.Resolution}] = candle
	}
	c.mu.Lock()
	c.candles = next
	c.mu.Unlock()
}

func (c *CandleCache) Clear() {
	c.Replace(nil)
}

// ForTicker returns the cached candles of one market keyed by resolution.
func (c *CandleCache) ForTicker(ticker string) map[model.CandleResolution]model.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[model.CandleResolution]model.Candle)
	for k, v := range c.candles {
		if k.ticker == ticker {
			out[k.resolution] = v
		}
	}
	return out
}
