package persistence

import (
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/store"
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store opens block and snapshot transactions against Postgres.
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sql.DB, metrics *observability.Metrics) *Store {
	return &Store{db: db, metrics: metrics}
}

// BeginBlock opens the single read-uncommitted write transaction of a block.
func (s *Store) BeginBlock(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	if err != nil {
		s.countError("tx_begin")
		return nil, fmt.Errorf("begin block tx: %w", err)
	}
	return &meteredTx{BlockTx: newBlockTx(tx), metrics: s.metrics}, nil
}

// BeginSnapshot opens a read-only, read-committed transaction for cache resync.
func (s *Store) BeginSnapshot(ctx context.Context) (store.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true})
	if err != nil {
		s.countError("snapshot_begin")
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	return &SnapshotTx{BlockTx: newBlockTx(tx)}, nil
}

// PerpetualMarkets loads the reference set of perpetual markets.
func (s *Store) PerpetualMarkets(ctx context.Context) ([]model.PerpetualMarket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clob_pair_id, market_id, ticker, atomic_resolution, open_interest
		FROM perpetual_markets
		ORDER BY id ASC
	`)
	if err != nil {
		s.countError("reference_load")
		return nil, fmt.Errorf("query perpetual markets: %w", err)
	}
	defer rows.Close()

	var out []model.PerpetualMarket
	for rows.Next() {
		var m model.PerpetualMarket
		if err := rows.Scan(&m.ID, &m.ClobPairID, &m.MarketID, &m.Ticker, &m.AtomicResolution, &m.OpenInterest); err != nil {
			return nil, fmt.Errorf("scan perpetual market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertPerpetualMarket writes reference data. Used by seeding and tests.
func (s *Store) UpsertPerpetualMarket(ctx context.Context, m model.PerpetualMarket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO perpetual_markets (id, clob_pair_id, market_id, ticker, atomic_resolution, open_interest)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			clob_pair_id = EXCLUDED.clob_pair_id,
			market_id = EXCLUDED.market_id,
			ticker = EXCLUDED.ticker,
			atomic_resolution = EXCLUDED.atomic_resolution,
			open_interest = EXCLUDED.open_interest
	`, m.ID, m.ClobPairID, m.MarketID, m.Ticker, m.AtomicResolution, m.OpenInterest)
	if err != nil {
		return fmt.Errorf("upsert perpetual market %d: %w", m.ID, err)
	}
	return nil
}

func (s *Store) countError(stage string) {
	if s.metrics != nil {
		s.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}

// meteredTx records commit latency and failures.
type meteredTx struct {
	*BlockTx
	metrics *observability.Metrics
}

func (t *meteredTx) Commit() error {
	start := time.Now()
	if err := t.BlockTx.Commit(); err != nil {
		if t.metrics != nil {
			t.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return fmt.Errorf("commit block tx: %w", err)
	}
	if t.metrics != nil {
		t.metrics.CommitDur.Observe(time.Since(start).Seconds())
	}
	return nil
}
