// Package candles derives OHLC candles from the trades of a block.
package candles

import (
	"PerpIndexer/internal/cache"
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/reference"
	"PerpIndexer/internal/store"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MidPriceSource returns the orderbook mid price per ticker, nil when unknown.
type MidPriceSource interface {
	MidPrices(ctx context.Context, tickers []string) map[string]*decimal.Decimal
}

// BlockUpdate is the fold of one market's trades in a block.
type BlockUpdate struct {
	Low             decimal.Decimal
	High            decimal.Decimal
	Open            decimal.Decimal
	Close           decimal.Decimal
	BaseTokenVolume decimal.Decimal
	USDVolume       decimal.Decimal
	Trades          int64
}

func newBlockUpdate(price, size decimal.Decimal) *BlockUpdate {
	return &BlockUpdate{
		Low:             price,
		High:            price,
		Open:            price,
		Close:           price,
		BaseTokenVolume: size,
		USDVolume:       price.Mul(size),
		Trades:          1,
	}
}

func (u *BlockUpdate) add(price, size decimal.Decimal) {
	if price.LessThan(u.Low) {
		u.Low = price
	}
	if price.GreaterThan(u.High) {
		u.High = price
	}
	u.Close = price
	u.BaseTokenVolume = u.BaseTokenVolume.Add(size)
	u.USDVolume = u.USDVolume.Add(price.Mul(size))
	u.Trades++
}

// Generator writes the candles of every market and resolution touched by a
// block, and the candles rolling over into a new period.
type Generator struct {
	markets   *reference.PerpetualMarkets
	candles   *cache.CandleCache
	midPrices MidPriceSource
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewGenerator(
	markets *reference.PerpetualMarkets,
	candles *cache.CandleCache,
	midPrices MidPriceSource,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Generator {
	return &Generator{
		markets:   markets,
		candles:   candles,
		midPrices: midPrices,
		metrics:   metrics,
		logger:    logger,
	}
}

// BlockUpdates folds the block's trades per ticker in chain order.
func (g *Generator) BlockUpdates(trades []outbound.TradeMessage) (map[string]*BlockUpdate, error) {
	updates := make(map[string]*BlockUpdate)
	for _, msg := range trades {
		market, ok := g.markets.ByClobPair(msg.ClobPairID)
		if !ok {
			return nil, fmt.Errorf("no ticker for clob pair %d", msg.ClobPairID)
		}
		for _, t := range msg.Trades {
			price, err := decimal.NewFromString(t.Price)
			if err != nil {
				return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
			}
			size, err := decimal.NewFromString(t.Size)
			if err != nil {
				return nil, fmt.Errorf("trade %s size: %w", t.ID, err)
			}
			if u, ok := updates[market.Ticker]; ok {
				u.add(price, size)
			} else {
				updates[market.Ticker] = newBlockUpdate(price, size)
			}
		}
	}
	return updates, nil
}

// Update writes candles for the block through tx and appends candle
// messages. It returns the written candles in write order; the caller puts
// them in the candle cache after commit.
func (g *Generator) Update(ctx context.Context, tx store.Tx, agg *outbound.Aggregator, blockTime time.Time) ([]model.Candle, error) {
	updates, err := g.BlockUpdates(agg.TradeMessages())
	if err != nil {
		return nil, err
	}

	markets := g.markets.All()
	tickers := make([]string, len(markets))
	for i, m := range markets {
		tickers[i] = m.Ticker
	}
	midPrices := map[string]*decimal.Decimal{}
	if g.midPrices != nil {
		midPrices = g.midPrices.MidPrices(ctx, tickers)
	}

	pos := event.BlockTrailer(agg.Height())

	var written []model.Candle
	for _, market := range markets {
		update := updates[market.Ticker]
		for _, resolution := range model.CandleResolutions {
			startedAt := resolution.StartTime(blockTime)
			for _, c := range g.plan(market, resolution, startedAt, update, midPrices[market.Ticker]) {
				if err := tx.UpsertCandle(ctx, c); err != nil {
					return nil, err
				}
				agg.AddCandleMessage(pos, c.Ticker, candleMessage(market, c))
				if g.metrics != nil {
					g.metrics.CandlesUpdated.WithLabelValues(string(resolution)).Inc()
				}
				written = append(written, c)
			}
		}
	}
	return written, nil
}

// plan decides which candles to write for one market and resolution:
//
//	no existing,   no update  -> nothing
//	no existing,   update     -> create
//	older start,   update     -> close previous mid price, create
//	older start,   no update  -> close previous mid price, create empty at previous close
//	same start,    no update  -> nothing
//	same start,    update     -> replace when existing has 0 trades, else merge
func (g *Generator) plan(
	market model.PerpetualMarket,
	resolution model.CandleResolution,
	startedAt time.Time,
	update *BlockUpdate,
	midPrice *decimal.Decimal,
) []model.Candle {
	existing, ok := g.candles.Get(market.Ticker, resolution)
	if !ok {
		if update == nil {
			return nil
		}
		return []model.Candle{newCandle(market, resolution, startedAt, update, midPrice)}
	}

	if !existing.StartedAt.Equal(startedAt) {
		previous := existing
		previous.OrderbookMidPriceClose = midPrice
		if update != nil {
			return []model.Candle{previous, newCandle(market, resolution, startedAt, update, midPrice)}
		}
		empty := &BlockUpdate{
			Low:             existing.Close,
			High:            existing.Close,
			Open:            existing.Close,
			Close:           existing.Close,
			BaseTokenVolume: decimal.Zero,
			USDVolume:       decimal.Zero,
			Trades:          0,
		}
		return []model.Candle{previous, newCandle(market, resolution, startedAt, empty, midPrice)}
	}

	if update == nil {
		return nil
	}
	return []model.Candle{mergeCandle(existing, update)}
}

// CandleID is stable per (ticker, resolution, period start).
func CandleID(ticker string, resolution model.CandleResolution, startedAt time.Time) uuid.UUID {
	return event.DeterministicID(ticker, string(resolution), startedAt.UTC().Format(time.RFC3339))
}

func newCandle(
	market model.PerpetualMarket,
	resolution model.CandleResolution,
	startedAt time.Time,
	u *BlockUpdate,
	midPrice *decimal.Decimal,
) model.Candle {
	return model.Candle{
		ID:                     CandleID(market.Ticker, resolution, startedAt),
		StartedAt:              startedAt,
		Ticker:                 market.Ticker,
		Resolution:             resolution,
		Low:                    u.Low,
		High:                   u.High,
		Open:                   u.Open,
		Close:                  u.Close,
		BaseTokenVolume:        u.BaseTokenVolume,
		USDVolume:              u.USDVolume,
		Trades:                 u.Trades,
		StartingOpenInterest:   market.OpenInterest,
		OrderbookMidPriceOpen:  midPrice,
		OrderbookMidPriceClose: midPrice,
	}
}

// mergeCandle folds a block update into a candle of the same period.
func mergeCandle(existing model.Candle, u *BlockUpdate) model.Candle {
	c := existing
	if existing.Trades == 0 {
		c.Low, c.High, c.Open, c.Close = u.Low, u.High, u.Open, u.Close
		c.BaseTokenVolume = u.BaseTokenVolume
		c.USDVolume = u.USDVolume
		c.Trades = u.Trades
		return c
	}
	c.Low = decimal.Min(existing.Low, u.Low)
	c.High = decimal.Max(existing.High, u.High)
	c.Close = u.Close
	c.BaseTokenVolume = existing.BaseTokenVolume.Add(u.BaseTokenVolume)
	c.USDVolume = existing.USDVolume.Add(u.USDVolume)
	c.Trades = existing.Trades + u.Trades
	return c
}

func candleMessage(market model.PerpetualMarket, c model.Candle) outbound.CandleMessage {
	content := outbound.CandleContent{
		StartedAt:            c.StartedAt.UTC().Format(time.RFC3339),
		Ticker:               c.Ticker,
		Resolution:           string(c.Resolution),
		Low:                  c.Low.String(),
		High:                 c.High.String(),
		Open:                 c.Open.String(),
		Close:                c.Close.String(),
		BaseTokenVolume:      c.BaseTokenVolume.String(),
		USDVolume:            c.USDVolume.String(),
		Trades:               c.Trades,
		StartingOpenInterest: c.StartingOpenInterest.String(),
	}
	if c.OrderbookMidPriceOpen != nil {
		content.OrderbookMidPriceOpen = c.OrderbookMidPriceOpen.String()
	}
	if c.OrderbookMidPriceClose != nil {
		content.OrderbookMidPriceClose = c.OrderbookMidPriceClose.String()
	}
	return outbound.CandleMessage{
		ClobPairID: market.ClobPairID,
		Resolution: string(c.Resolution),
		Contents:   content,
		Version:    outbound.CandlesVersion,
	}
}
