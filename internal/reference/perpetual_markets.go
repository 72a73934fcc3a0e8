// Package reference holds slowly changing chain reference data refreshed
// independently of block processing.
package reference

import (
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/observability"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Loader reads the full perpetual market set.
type Loader interface {
	PerpetualMarkets(ctx context.Context) ([]model.PerpetualMarket, error)
}

// PerpetualMarkets is the in-memory perpetual market set. Lookups take a
// read lock only and never touch the store.
type PerpetualMarkets struct {
	mu          sync.RWMutex
	byID        map[uint32]model.PerpetualMarket
	byClobPair  map[uint32]model.PerpetualMarket
	byMarketID  map[uint32]model.PerpetualMarket
	lastRefresh time.Time

	loader  Loader
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewPerpetualMarkets(loader Loader, metrics *observability.Metrics, logger zerolog.Logger) *PerpetualMarkets {
	p := &PerpetualMarkets{loader: loader, metrics: metrics, logger: logger}
	p.Replace(nil)
	return p
}

// Replace swaps the whole market set.
func (p *PerpetualMarkets) Replace(markets []model.PerpetualMarket) {
	byID := make(map[uint32]model.PerpetualMarket, len(markets))
	byClobPair := make(map[uint32]model.PerpetualMarket, len(markets))
	byMarketID := make(map[uint32]model.PerpetualMarket, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
		byClobPair[m.ClobPairID] = m
		byMarketID[m.MarketID] = m
	}

	p.mu.Lock()
	p.byID = byID
	p.byClobPair = byClobPair
	p.byMarketID = byMarketID
	p.lastRefresh = time.Now()
	p.mu.Unlock()
}

func (p *PerpetualMarkets) ByID(perpetualID uint32) (model.PerpetualMarket, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.byID[perpetualID]
	return m, ok
}

func (p *PerpetualMarkets) ByClobPair(clobPairID uint32) (model.PerpetualMarket, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.byClobPair[clobPairID]
	return m, ok
}

// ByMarketID resolves the perpetual quoted by an oracle market.
func (p *PerpetualMarkets) ByMarketID(marketID uint32) (model.PerpetualMarket, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.byMarketID[marketID]
	return m, ok
}

// All returns every market ordered by perpetual id.
func (p *PerpetualMarkets) All() []model.PerpetualMarket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.PerpetualMarket, 0, len(p.byID))
	for _, m := range p.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Refresh reloads the market set from the loader. On failure the previous
// set stays in place.
func (p *PerpetualMarkets) Refresh(ctx context.Context) error {
	markets, err := p.loader.PerpetualMarkets(ctx)
	if err != nil {
		p.count("error")
		return fmt.Errorf("refresh perpetual markets: %w", err)
	}
	p.Replace(markets)
	p.count("ok")
	return nil
}

// Run refreshes on every tick until ctx is cancelled.
func (p *PerpetualMarkets) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("reference refresh failed, keeping previous set")
			}
		}
	}
}

func (p *PerpetualMarkets) count(status string) {
	if p.metrics != nil {
		p.metrics.ReferenceRefresh.WithLabelValues(status).Inc()
	}
}
