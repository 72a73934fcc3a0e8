// Package core is the block engine: the height gate, the conflict scheduler
// and the per-block unit of work.
package core

import (
	"PerpIndexer/internal/cache"
	"PerpIndexer/internal/candles"
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/handler"
	"PerpIndexer/internal/ingestion"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ProcessorDeps wires a BlockProcessor.
type ProcessorDeps struct {
	Store       store.Store
	Registry    *handler.Registry
	Scheduler   *Scheduler
	Gate        *HeightGate
	Candles     *candles.Generator
	HeightCache *cache.HeightCache
	CandleCache *cache.CandleCache
	Resyncer    Resyncer
	Publisher   outbound.Publisher
	Outbound    outbound.Config
	Health      *observability.HealthChecker
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

// BlockProcessor applies one block at a time as a single transaction and
// publishes the block's messages once the transaction is durable.
type BlockProcessor struct {
	store       store.Store
	registry    *handler.Registry
	scheduler   *Scheduler
	gate        *HeightGate
	candles     *candles.Generator
	heightCache *cache.HeightCache
	candleCache *cache.CandleCache
	resyncer    Resyncer
	publisher   outbound.Publisher
	aggCfg      outbound.Config
	health      *observability.HealthChecker
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func NewBlockProcessor(d ProcessorDeps) *BlockProcessor {
	return &BlockProcessor{
		store:       d.Store,
		registry:    d.Registry,
		scheduler:   d.Scheduler,
		gate:        d.Gate,
		candles:     d.Candles,
		heightCache: d.HeightCache,
		candleCache: d.CandleCache,
		resyncer:    d.Resyncer,
		publisher:   d.Publisher,
		aggCfg:      d.Outbound,
		health:      d.Health,
		metrics:     d.Metrics,
		logger:      d.Logger,
	}
}

// HandleMessage is the full path of one inbound message: decode, gate,
// process, then publish in the background. A nil return means the message
// may be acknowledged.
func (p *BlockProcessor) HandleMessage(ctx context.Context, raw ingestion.RawBlock) error {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.MessagesReceived.Inc()
		if !raw.PublishedAt.IsZero() {
			p.metrics.TimeInQueue.Observe(start.Sub(raw.PublishedAt).Seconds())
		}
	}

	block, err := ingestion.DecodeBlock(raw.Data)
	if err != nil {
		p.logFailure(err, "", "failed to decode block")
		p.observe(start, false)
		return err
	}

	skip, err := p.gate.ShouldSkip(ctx, block.Height)
	if err != nil {
		p.logFailure(err, block.Height, "height gate failed")
		p.observe(start, false)
		return err
	}
	if skip {
		return nil
	}

	if p.metrics != nil {
		if h, err := strconv.ParseFloat(block.Height, 64); err == nil {
			p.metrics.ProcessingHeight.Set(h)
		}
	}

	agg, err := p.Process(ctx, block)
	if err != nil {
		p.observe(start, false)
		return err
	}

	// Publishing outlives the message: the block is durable from here on.
	if p.publisher != nil {
		go agg.Publish(context.WithoutCancel(ctx), p.publisher)
	}
	p.observe(start, true)
	return nil
}

// Process applies block in one transaction. On success the height and
// candle caches reflect the block and the returned aggregator holds its
// unpublished messages. On failure nothing of the block is visible, the
// caches are resynced and the error is returned.
func (p *BlockProcessor) Process(ctx context.Context, block *event.Block) (*outbound.Aggregator, error) {
	// Step 1: Envelope validation
	if err := block.Validate(); err != nil {
		return nil, p.fail(ctx, block, nil, err)
	}

	// Step 2: Block transaction
	tx, err := p.store.BeginBlock(ctx)
	if err != nil {
		return nil, p.fail(ctx, block, nil, fmt.Errorf("begin block %s: %w", block.Height, err))
	}

	// Step 3-6: Bookkeeping rows, handlers, candles
	agg := outbound.NewAggregator(block.Height, p.aggCfg, p.metrics, p.logger)
	written, err := p.apply(ctx, block, tx, agg)
	if err != nil {
		return nil, p.fail(ctx, block, tx, err)
	}

	// Step 7: Commit
	if err := tx.Commit(); err != nil {
		return nil, p.fail(ctx, block, tx, fmt.Errorf("commit block %s: %w", block.Height, err))
	}

	// Step 8: Caches follow the committed state
	p.heightCache.Set(block.Height)
	for _, c := range written {
		p.candleCache.Set(c)
	}
	if p.health != nil {
		p.health.SetLastBlock(block.Height)
	}

	p.logger.Debug().
		Str("height", block.Height).
		Int("events", len(block.Events)).
		Int("messages", agg.Len()).
		Msg("block committed")
	return agg, nil
}

func (p *BlockProcessor) apply(ctx context.Context, block *event.Block, tx store.Tx, agg *outbound.Aggregator) ([]model.Candle, error) {
	if err := p.insertBookkeeping(ctx, block, tx); err != nil {
		return nil, err
	}

	handlers, err := p.buildHandlers(block)
	if err != nil {
		return nil, err
	}
	if err := p.scheduler.Run(ctx, handlers, tx, agg); err != nil {
		return nil, err
	}

	var written []model.Candle
	if p.candles != nil {
		written, err = p.candles.Update(ctx, tx, agg, *block.Time)
		if err != nil {
			return nil, fmt.Errorf("update candles: %w", err)
		}
	}

	agg.AddBlockHeightMessage(
		event.BlockTrailer(block.Height),
		outbound.BlockHeightMessage{
			BlockHeight: block.Height,
			Time:        block.Time.UTC().Format(time.RFC3339Nano),
			Version:     outbound.BlockHeightVersion,
		},
	)
	return written, nil
}

// insertBookkeeping writes the block row, one row per referenced
// transaction and one row per event, before any handler runs.
func (p *BlockProcessor) insertBookkeeping(ctx context.Context, block *event.Block, tx store.Tx) error {
	if err := tx.InsertBlock(ctx, model.Block{Height: block.Height, Time: block.Time.UTC()}); err != nil {
		return fmt.Errorf("insert block %s: %w", block.Height, err)
	}
	for _, idx := range block.TransactionIndexes() {
		if err := tx.InsertTendermintTx(ctx, model.TendermintTx{
			ID:               event.TransactionID(block.Height, idx),
			BlockHeight:      block.Height,
			TransactionIndex: idx,
			Hash:             block.TxHash(idx),
		}); err != nil {
			return fmt.Errorf("insert transaction %d of block %s: %w", idx, block.Height, err)
		}
	}
	for _, ev := range block.Events {
		pos := block.PositionOf(ev)
		if err := tx.InsertTendermintEvent(ctx, model.TendermintEvent{
			ID:               event.EventID(pos),
			BlockHeight:      block.Height,
			TransactionIndex: ev.TransactionIndex,
			EventIndex:       ev.EventIndex,
			Subtype:          ev.Subtype,
		}); err != nil {
			return fmt.Errorf("insert event %s: %w", pos, err)
		}
	}
	return nil
}

// buildHandlers constructs and parses a handler per event in block order.
// Events of unknown subtypes are reported and left out.
func (p *BlockProcessor) buildHandlers(block *event.Block) ([]handler.Handler, error) {
	handlers := make([]handler.Handler, 0, len(block.Events))
	for _, ev := range block.Events {
		h, err := p.registry.New(block, ev)
		if errors.Is(err, handler.ErrUnknownSubtype) {
			p.logger.Error().
				Str("height", block.Height).
				Str("subtype", ev.Subtype).
				Str("position", block.PositionOf(ev).String()).
				Msg("unknown event subtype, skipping event")
			if p.metrics != nil {
				p.metrics.UnknownSubtype.WithLabelValues(ev.Subtype).Inc()
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

// fail rolls back tx when given, resyncs the caches and returns err.
func (p *BlockProcessor) fail(ctx context.Context, block *event.Block, tx store.Tx, err error) error {
	if tx != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrTxDone) {
			p.logger.Error().Err(rbErr).Str("height", block.Height).Msg("rollback failed")
		}
	}
	if p.resyncer != nil {
		if rsErr := p.resyncer.Resync(ctx); rsErr != nil {
			p.logger.Error().Err(rsErr).Str("height", block.Height).Msg("cache resync after failed block failed")
		}
	}
	p.logFailure(err, block.Height, "failed to process block")
	return err
}

// logFailure logs malformed protocol data at the highest level without
// exiting; any other failure is an error.
func (p *BlockProcessor) logFailure(err error, height, msg string) {
	e := p.logger.Error()
	if event.IsParseError(err) {
		e = p.logger.WithLevel(zerolog.FatalLevel)
	}
	e.Err(err).Str("height", height).Msg(msg)
}

func (p *BlockProcessor) observe(start time.Time, success bool) {
	if p.metrics == nil {
		return
	}
	p.metrics.BlockDuration.WithLabelValues(strconv.FormatBool(success)).Observe(time.Since(start).Seconds())
}
