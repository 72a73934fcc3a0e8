package core

import (
	"PerpIndexer/internal/cache"
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/observability"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Resyncer rebuilds the read caches from one consistent store snapshot.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// HeightGate decides whether an incoming block must be processed, based on
// the height of the last committed block.
// Not safe for concurrent use: only the single block loop calls it.
type HeightGate struct {
	height   *cache.HeightCache
	resyncer Resyncer
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewHeightGate(height *cache.HeightCache, resyncer Resyncer, metrics *observability.Metrics, logger zerolog.Logger) *HeightGate {
	return &HeightGate{
		height:   height,
		resyncer: resyncer,
		metrics:  metrics,
		logger:   logger,
	}
}

// ShouldSkip reports true for a block at or below the committed height.
// A height beyond the next expected one triggers a cache resync; if the
// block is still not known afterwards it is processed anyway and the gap
// is reported.
func (g *HeightGate) ShouldSkip(ctx context.Context, height string) (bool, error) {
	return g.shouldSkip(ctx, height, true)
}

func (g *HeightGate) shouldSkip(ctx context.Context, height string, canResync bool) (bool, error) {
	incoming, err := event.ParseHeight(height)
	if err != nil {
		return false, err
	}
	current, err := g.currentHeight()
	if err != nil {
		return false, err
	}

	if incoming.LessThanOrEqual(current) {
		g.logger.Info().
			Str("height", height).
			Str("current_height", current.String()).
			Msg("block already processed")
		if g.metrics != nil {
			g.metrics.BlocksSkipped.WithLabelValues("already_processed").Inc()
		}
		return true, nil
	}

	expected := current.Add(decimal.NewFromInt(1))
	if incoming.Equal(expected) {
		return false, nil
	}

	if canResync {
		if err := g.resyncer.Resync(ctx); err != nil {
			return false, fmt.Errorf("resync after height gap at %s: %w", height, err)
		}
		return g.shouldSkip(ctx, height, false)
	}

	g.logger.Error().
		Str("expected_height", expected.String()).
		Str("height", height).
		Msg("skipped a block")
	if g.metrics != nil {
		g.metrics.BlockGaps.Inc()
	}
	return false, nil
}

// currentHeight reads the height cache; an empty cache means nothing was
// committed and the next expected height is 1.
func (g *HeightGate) currentHeight() (decimal.Decimal, error) {
	h := g.height.Get()
	if h == "" {
		return decimal.Zero, nil
	}
	return event.ParseHeight(h)
}
