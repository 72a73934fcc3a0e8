// Package store defines the transactional boundary the block engine writes through.
package store

import (
	"PerpIndexer/internal/model"
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrTxDone is returned by any call on a transaction that was already
// committed or rolled back.
var ErrTxDone = errors.New("store: transaction already committed or rolled back")

// Tx is the single write handle of one block. It is shared by handlers
// running concurrently in a frontier; implementations must tolerate
// concurrent calls.
type Tx interface {
	InsertBlock(ctx context.Context, b model.Block) error
	InsertTendermintTx(ctx context.Context, t model.TendermintTx) error
	InsertTendermintEvent(ctx context.Context, e model.TendermintEvent) error

	InsertOraclePrice(ctx context.Context, p model.OraclePrice) error

	// FindOrder returns nil when the order has never been seen.
	FindOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	UpsertOrder(ctx context.Context, o model.Order) error

	// InsertFill reports false when a fill with the same id already exists;
	// the caller must then skip every running-total update derived from it.
	InsertFill(ctx context.Context, f model.Fill) (bool, error)

	// FindPerpetualPosition returns nil when the subaccount has no position.
	FindPerpetualPosition(ctx context.Context, subaccountID uuid.UUID, perpetualID uint32) (*model.PerpetualPosition, error)
	UpsertPerpetualPosition(ctx context.Context, p model.PerpetualPosition) error
	UpsertAssetPosition(ctx context.Context, p model.AssetPosition) error
	UpsertSubaccount(ctx context.Context, s model.Subaccount) error

	InsertTransfer(ctx context.Context, t model.Transfer) error
	InsertFundingIndexUpdate(ctx context.Context, f model.FundingIndexUpdate) error

	// UpsertCandle inserts the candle or overwrites the row with the same id.
	UpsertCandle(ctx context.Context, c model.Candle) error

	Commit() error
	Rollback() error
}

// SnapshotReader loads the state the read caches are rebuilt from.
type SnapshotReader interface {
	// LatestBlockHeight returns "" when no block was ever committed.
	LatestBlockHeight(ctx context.Context) (string, error)
	// LatestCandles returns the most recent candle per (ticker, resolution).
	LatestCandles(ctx context.Context) ([]model.Candle, error)
	// LatestPrices returns the most recent oracle price per market.
	LatestPrices(ctx context.Context) (map[uint32]decimal.Decimal, error)
}

// Snapshot is a read-only, read-committed transaction. It is never committed.
type Snapshot interface {
	SnapshotReader
	Rollback() error
}

// Store opens block and snapshot transactions.
type Store interface {
	BeginBlock(ctx context.Context) (Tx, error)
	BeginSnapshot(ctx context.Context) (Snapshot, error)
}
