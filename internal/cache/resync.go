package cache

import (
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/store"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Resyncer rebuilds every read cache from committed store state.
type Resyncer struct {
	store   store.Store
	height  *HeightCache
	prices  *PriceCache
	candles *CandleCache
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewResyncer(
	st store.Store,
	height *HeightCache,
	prices *PriceCache,
	candles *CandleCache,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Resyncer {
	return &Resyncer{
		store:   st,
		height:  height,
		prices:  prices,
		candles: candles,
		metrics: metrics,
		logger:  logger,
	}
}

// Resync loads height, latest candles and latest prices in one read-committed
// snapshot and replaces the caches wholesale. On failure the caches are left
// untouched.
func (r *Resyncer) Resync(ctx context.Context) error {
	start := time.Now()
	err := r.resync(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.CacheResync.WithLabelValues(status).Inc()
	}
	if err != nil {
		return err
	}
	r.logger.Info().
		Str("height", r.height.Get()).
		Dur("elapsed", time.Since(start)).
		Msg("caches resynced")
	return nil
}

func (r *Resyncer) resync(ctx context.Context) error {
	snap, err := r.store.BeginSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	defer snap.Rollback()

	var (
		height  string
		candles []model.Candle
		prices  map[uint32]decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := snap.LatestBlockHeight(gctx)
		height = h
		return err
	})
	g.Go(func() error {
		c, err := snap.LatestCandles(gctx)
		candles = c
		return err
	})
	g.Go(func() error {
		p, err := snap.LatestPrices(gctx)
		prices = p
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	r.height.Set(height)
	r.candles.Replace(candles)
	r.prices.Replace(prices)
	return nil
}
