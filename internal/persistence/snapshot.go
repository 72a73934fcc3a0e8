package persistence

import (
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/store"
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// SnapshotTx serves cache resync reads. The errgroup in the resyncer issues
// them concurrently, so it reuses the BlockTx statement lock.
type SnapshotTx struct {
	*BlockTx
}

var _ store.Snapshot = (*SnapshotTx)(nil)

// LatestBlockHeight returns "" when no block was ever committed.
func (s *SnapshotTx) LatestBlockHeight(ctx context.Context) (string, error) {
	var height sql.NullString
	err := s.queryRow(ctx, `SELECT MAX(block_height)::text FROM blocks`, nil, &height)
	if err != nil {
		return "", fmt.Errorf("latest block height: %w", err)
	}
	if !height.Valid {
		return "", nil
	}
	return height.String, nil
}

// LatestCandles returns the most recent candle per (ticker, resolution).
func (s *SnapshotTx) LatestCandles(ctx context.Context) ([]model.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, store.ErrTxDone
	}

	rows, err := s.tx.QueryContext(ctx, `
		SELECT DISTINCT ON (ticker, resolution)
		       id, started_at, ticker, resolution, low, high, open, close,
		       base_token_volume, usd_volume, trades, starting_open_interest,
		       orderbook_mid_price_open, orderbook_mid_price_close
		FROM candles
		ORDER BY ticker, resolution, started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("latest candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		var resolution string
		var midOpen, midClose decimal.NullDecimal
		if err := rows.Scan(
			&c.ID, &c.StartedAt, &c.Ticker, &resolution, &c.Low, &c.High, &c.Open, &c.Close,
			&c.BaseTokenVolume, &c.USDVolume, &c.Trades, &c.StartingOpenInterest,
			&midOpen, &midClose,
		); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Resolution = model.CandleResolution(resolution)
		c.StartedAt = c.StartedAt.UTC()
		if midOpen.Valid {
			c.OrderbookMidPriceOpen = &midOpen.Decimal
		}
		if midClose.Valid {
			c.OrderbookMidPriceClose = &midClose.Decimal
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestPrices returns the most recent oracle price per market.
func (s *SnapshotTx) LatestPrices(ctx context.Context) (map[uint32]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, store.ErrTxDone
	}

	rows, err := s.tx.QueryContext(ctx, `
		SELECT DISTINCT ON (market_id) market_id, price
		FROM oracle_prices
		ORDER BY market_id, effective_at_height DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("latest prices: %w", err)
	}
	defer rows.Close()

	out := make(map[uint32]decimal.Decimal)
	for rows.Next() {
		var marketID uint32
		var price decimal.Decimal
		if err := rows.Scan(&marketID, &price); err != nil {
			return nil, fmt.Errorf("scan oracle price: %w", err)
		}
		out[marketID] = price
	}
	return out, rows.Err()
}
