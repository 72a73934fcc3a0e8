package persistence

import (
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/store"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BlockTx wraps the *sql.Tx of one block. Handlers in the same frontier call
// it concurrently; lib/pq cannot interleave statements on one connection, so
// every statement (including the scan of its result) runs under mu.
type BlockTx struct {
	mu   sync.Mutex
	tx   *sql.Tx
	done bool
}

var _ store.Tx = (*BlockTx)(nil)

func newBlockTx(tx *sql.Tx) *BlockTx {
	return &BlockTx{tx: tx}
}

func (b *BlockTx) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil, store.ErrTxDone
	}
	return b.tx.ExecContext(ctx, query, args...)
}

// queryRow runs query and scans the single result row while holding mu.
func (b *BlockTx) queryRow(ctx context.Context, query string, args []interface{}, dest ...interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return store.ErrTxDone
	}
	return b.tx.QueryRowContext(ctx, query, args...).Scan(dest...)
}

func (b *BlockTx) InsertBlock(ctx context.Context, blk model.Block) error {
	_, err := b.exec(ctx,
		`INSERT INTO blocks (block_height, time) VALUES ($1, $2)
		 ON CONFLICT (block_height) DO NOTHING`,
		blk.Height, blk.Time,
	)
	if err != nil {
		return fmt.Errorf("insert block %s: %w", blk.Height, err)
	}
	return nil
}

func (b *BlockTx) InsertTendermintTx(ctx context.Context, t model.TendermintTx) error {
	_, err := b.exec(ctx,
		`INSERT INTO tendermint_transactions (id, block_height, transaction_index, hash)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, t.BlockHeight, t.TransactionIndex, t.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert tendermint tx %s/%d: %w", t.BlockHeight, t.TransactionIndex, err)
	}
	return nil
}

func (b *BlockTx) InsertTendermintEvent(ctx context.Context, e model.TendermintEvent) error {
	_, err := b.exec(ctx,
		`INSERT INTO tendermint_events (id, block_height, transaction_index, event_index, subtype)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.BlockHeight, e.TransactionIndex, e.EventIndex, e.Subtype,
	)
	if err != nil {
		return fmt.Errorf("insert tendermint event %s/%d/%d: %w", e.BlockHeight, e.TransactionIndex, e.EventIndex, err)
	}
	return nil
}

func (b *BlockTx) InsertOraclePrice(ctx context.Context, p model.OraclePrice) error {
	_, err := b.exec(ctx,
		`INSERT INTO oracle_prices (id, market_id, price, effective_at, effective_at_height)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.MarketID, p.Price, p.EffectiveAt, p.EffectiveAtHeight,
	)
	if err != nil {
		return fmt.Errorf("insert oracle price market=%d: %w", p.MarketID, err)
	}
	return nil
}

func (b *BlockTx) FindOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	var status string
	err := b.queryRow(ctx,
		`SELECT id, subaccount_id, client_id, clob_pair_id, order_flags, side, size, total_filled,
		        price, status, updated_at, updated_at_height
		 FROM orders WHERE id = $1`,
		[]interface{}{id},
		&o.ID, &o.SubaccountID, &o.ClientID, &o.ClobPairID, &o.OrderFlags, &o.Side, &o.Size, &o.TotalFilled,
		&o.Price, &status, &o.UpdatedAt, &o.UpdatedAtHeight,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func (b *BlockTx) UpsertOrder(ctx context.Context, o model.Order) error {
	_, err := b.exec(ctx,
		`INSERT INTO orders (id, subaccount_id, client_id, clob_pair_id, order_flags, side, size,
		                     total_filled, price, status, updated_at, updated_at_height)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		     size = EXCLUDED.size,
		     total_filled = EXCLUDED.total_filled,
		     price = EXCLUDED.price,
		     status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at,
		     updated_at_height = EXCLUDED.updated_at_height`,
		o.ID, o.SubaccountID, o.ClientID, o.ClobPairID, o.OrderFlags, o.Side, o.Size,
		o.TotalFilled, o.Price, string(o.Status), o.UpdatedAt, o.UpdatedAtHeight,
	)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}
	return nil
}

func (b *BlockTx) InsertFill(ctx context.Context, f model.Fill) (bool, error) {
	res, err := b.exec(ctx,
		`INSERT INTO fills (id, subaccount_id, side, liquidity, type, clob_pair_id, order_id,
		                    size, price, fee, event_id, created_at, created_at_height)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		f.ID, f.SubaccountID, f.Side, string(f.Liquidity), string(f.Type), f.ClobPairID, nullUUID(f.OrderID),
		f.Size, f.Price, f.Fee, f.EventID, f.CreatedAt, f.CreatedAtHeight,
	)
	if err != nil {
		return false, fmt.Errorf("insert fill %s: %w", f.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert fill %s: rows affected: %w", f.ID, err)
	}
	return n == 1, nil
}

func (b *BlockTx) FindPerpetualPosition(ctx context.Context, subaccountID uuid.UUID, perpetualID uint32) (*model.PerpetualPosition, error) {
	p := model.PerpetualPosition{SubaccountID: subaccountID, PerpetualID: perpetualID}
	err := b.queryRow(ctx,
		`SELECT size, funding_index, updated_at_height
		 FROM perpetual_positions WHERE subaccount_id = $1 AND perpetual_id = $2`,
		[]interface{}{subaccountID, perpetualID},
		&p.Size, &p.FundingIndex, &p.UpdatedAtHeight,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find perpetual position %s/%d: %w", subaccountID, perpetualID, err)
	}
	return &p, nil
}

func (b *BlockTx) UpsertPerpetualPosition(ctx context.Context, p model.PerpetualPosition) error {
	_, err := b.exec(ctx,
		`INSERT INTO perpetual_positions (subaccount_id, perpetual_id, size, funding_index, updated_at_height)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subaccount_id, perpetual_id) DO UPDATE SET
		     size = EXCLUDED.size,
		     funding_index = EXCLUDED.funding_index,
		     updated_at_height = EXCLUDED.updated_at_height`,
		p.SubaccountID, p.PerpetualID, p.Size, p.FundingIndex, p.UpdatedAtHeight,
	)
	if err != nil {
		return fmt.Errorf("upsert perpetual position %s/%d: %w", p.SubaccountID, p.PerpetualID, err)
	}
	return nil
}

func (b *BlockTx) UpsertAssetPosition(ctx context.Context, p model.AssetPosition) error {
	_, err := b.exec(ctx,
		`INSERT INTO asset_positions (subaccount_id, asset_id, size, updated_at_height)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (subaccount_id, asset_id) DO UPDATE SET
		     size = EXCLUDED.size,
		     updated_at_height = EXCLUDED.updated_at_height`,
		p.SubaccountID, p.AssetID, p.Size, p.UpdatedAtHeight,
	)
	if err != nil {
		return fmt.Errorf("upsert asset position %s/%d: %w", p.SubaccountID, p.AssetID, err)
	}
	return nil
}

func (b *BlockTx) UpsertSubaccount(ctx context.Context, s model.Subaccount) error {
	_, err := b.exec(ctx,
		`INSERT INTO subaccounts (id, address, subaccount_number, updated_at, updated_at_height)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		     updated_at = EXCLUDED.updated_at,
		     updated_at_height = EXCLUDED.updated_at_height`,
		s.ID, s.Address, s.Number, s.UpdatedAt, s.UpdatedAtHeight,
	)
	if err != nil {
		return fmt.Errorf("upsert subaccount %s: %w", s.ID, err)
	}
	return nil
}

func (b *BlockTx) InsertTransfer(ctx context.Context, t model.Transfer) error {
	_, err := b.exec(ctx,
		`INSERT INTO transfers (id, sender_subaccount_id, recipient_subaccount_id, sender_address,
		                        recipient_address, asset_id, size, event_id, created_at, created_at_height)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, nullUUID(t.SenderSubaccountID), nullUUID(t.RecipientSubaccountID),
		nullString(t.SenderAddress), nullString(t.RecipientAddress),
		t.AssetID, t.Size, t.EventID, t.CreatedAt, t.CreatedAtHeight,
	)
	if err != nil {
		return fmt.Errorf("insert transfer %s: %w", t.ID, err)
	}
	return nil
}

func (b *BlockTx) InsertFundingIndexUpdate(ctx context.Context, f model.FundingIndexUpdate) error {
	_, err := b.exec(ctx,
		`INSERT INTO funding_index_updates (id, perpetual_id, rate, funding_index, oracle_price,
		                                    event_id, effective_at, effective_at_height)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		f.ID, f.PerpetualID, f.Rate, f.FundingIndex, f.OraclePrice, f.EventID, f.EffectiveAt, f.EffectiveAtHeight,
	)
	if err != nil {
		return fmt.Errorf("insert funding index update perpetual=%d: %w", f.PerpetualID, err)
	}
	return nil
}

func (b *BlockTx) UpsertCandle(ctx context.Context, c model.Candle) error {
	_, err := b.exec(ctx,
		`INSERT INTO candles (id, started_at, ticker, resolution, low, high, open, close,
		                      base_token_volume, usd_volume, trades, starting_open_interest,
		                      orderbook_mid_price_open, orderbook_mid_price_close)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		     low = EXCLUDED.low,
		     high = EXCLUDED.high,
		     open = EXCLUDED.open,
		     close = EXCLUDED.close,
		     base_token_volume = EXCLUDED.base_token_volume,
		     usd_volume = EXCLUDED.usd_volume,
		     trades = EXCLUDED.trades,
		     orderbook_mid_price_close = EXCLUDED.orderbook_mid_price_close`,
		c.ID, c.StartedAt, c.Ticker, string(c.Resolution), c.Low, c.High, c.Open, c.Close,
		c.BaseTokenVolume, c.USDVolume, c.Trades, c.StartingOpenInterest,
		nullDecimal(c.OrderbookMidPriceOpen), nullDecimal(c.OrderbookMidPriceClose),
	)
	if err != nil {
		return fmt.Errorf("upsert candle %s %s: %w", c.Ticker, c.Resolution, err)
	}
	return nil
}

func (b *BlockTx) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return store.ErrTxDone
	}
	b.done = true
	return b.tx.Commit()
}

// Rollback is safe to call after Commit; it then returns ErrTxDone.
func (b *BlockTx) Rollback() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return store.ErrTxDone
	}
	b.done = true
	return b.tx.Rollback()
}

func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
