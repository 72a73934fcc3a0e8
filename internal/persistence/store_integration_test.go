package persistence_test

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/persistence"
	"PerpIndexer/internal/store"
	"PerpIndexer/internal/testutil"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *persistence.Store {
	t.Helper()
	testutil.RequireIntegration(t)

	migrator := persistence.NewMigrator(testutil.TestPostgresDSN(), testutil.MigrationsDir(t))
	require.NoError(t, migrator.Up(context.Background()))

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return persistence.NewStore(db, observability.NewMetricsWith(prometheus.NewRegistry()))
}

// ============================================================================
// Test: Migrator
// ============================================================================

func TestMigrator_MissingDir(t *testing.T) {
	m := persistence.NewMigrator("postgres://localhost/none", "/nonexistent/migrations")
	err := m.Up(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat migrations dir")
}

func TestMigrator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := persistence.NewMigrator("postgres://localhost/none", "/nonexistent/migrations")
	require.ErrorIs(t, m.Up(ctx), context.Canceled)
}

// ============================================================================
// Test: Store (integration)
// ============================================================================

func TestStore_BlockCommitAndSnapshot(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)

	tx, err := st.BeginBlock(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertBlock(ctx, model.Block{Height: "10", Time: at}))
	require.NoError(t, tx.InsertOraclePrice(ctx, model.OraclePrice{
		ID:                event.DeterministicID("oracle_price", "0", "10"),
		MarketID:          0,
		Price:             decimal.RequireFromString("50000.25"),
		EffectiveAt:       at,
		EffectiveAtHeight: "10",
	}))

	sub := event.SubaccountID{Owner: "alice"}
	require.NoError(t, tx.UpsertSubaccount(ctx, model.Subaccount{ID: sub.UUID(), Address: "alice", UpdatedAt: at, UpdatedAtHeight: "10"}))
	fill := model.Fill{
		ID:              event.DeterministicID("fill", "10"),
		SubaccountID:    sub.UUID(),
		Side:            "BUY",
		Liquidity:       model.LiquidityMaker,
		Type:            model.FillTypeLimit,
		Size:            decimal.NewFromInt(2),
		Price:           decimal.NewFromInt(100),
		Fee:             decimal.Zero,
		EventID:         event.EventID(event.Position{Height: "10"}),
		CreatedAt:       at,
		CreatedAtHeight: "10",
	}
	inserted, err := tx.InsertFill(ctx, fill)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = tx.InsertFill(ctx, fill)
	require.NoError(t, err)
	assert.False(t, inserted, "same id conflicts")

	require.NoError(t, tx.UpsertPerpetualPosition(ctx, model.PerpetualPosition{
		SubaccountID: sub.UUID(), PerpetualID: 0, Size: decimal.NewFromInt(2), FundingIndex: decimal.Zero, UpdatedAtHeight: "10",
	}))
	pos, err := tx.FindPerpetualPosition(ctx, sub.UUID(), 0)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(2)))

	require.NoError(t, tx.Commit())
	require.ErrorIs(t, tx.Rollback(), store.ErrTxDone)

	snap, err := st.BeginSnapshot(ctx)
	require.NoError(t, err)
	defer snap.Rollback()

	height, err := snap.LatestBlockHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", height)

	prices, err := snap.LatestPrices(ctx)
	require.NoError(t, err)
	assert.True(t, prices[0].Equal(decimal.RequireFromString("50000.25")))
}

func TestStore_RollbackLeavesNothing(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	tx, err := st.BeginBlock(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertBlock(ctx, model.Block{Height: "11", Time: time.Now().UTC()}))
	require.NoError(t, tx.Rollback())

	snap, err := st.BeginSnapshot(ctx)
	require.NoError(t, err)
	defer snap.Rollback()
	height, err := snap.LatestBlockHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", height)
}

func TestStore_PerpetualMarkets(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertPerpetualMarket(ctx, testutil.ETHMarket))
	require.NoError(t, st.UpsertPerpetualMarket(ctx, testutil.BTCMarket))

	markets, err := st.PerpetualMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "BTC-USD", markets[0].Ticker)
	assert.True(t, markets[1].OpenInterest.Equal(decimal.RequireFromString("3000")))
}

func TestStore_LatestCandles(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mid := decimal.RequireFromString("100.5")

	tx, err := st.BeginBlock(ctx)
	require.NoError(t, err)
	for i, at := range []time.Time{start, start.Add(time.Minute)} {
		c := model.Candle{
			ID:                    event.DeterministicID("BTC-USD", "1MIN", at.String()),
			StartedAt:             at,
			Ticker:                "BTC-USD",
			Resolution:            model.CandleResolutionOneMinute,
			Low:                   decimal.NewFromInt(int64(99 + i)),
			High:                  decimal.NewFromInt(int64(101 + i)),
			Open:                  decimal.NewFromInt(100),
			Close:                 decimal.NewFromInt(100),
			BaseTokenVolume:       decimal.NewFromInt(1),
			USDVolume:             decimal.NewFromInt(100),
			Trades:                1,
			StartingOpenInterest:  decimal.Zero,
			OrderbookMidPriceOpen: &mid,
		}
		require.NoError(t, tx.UpsertCandle(ctx, c))
	}
	require.NoError(t, tx.Commit())

	snap, err := st.BeginSnapshot(ctx)
	require.NoError(t, err)
	defer snap.Rollback()
	candles, err := snap.LatestCandles(ctx)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.True(t, candles[0].StartedAt.Equal(start.Add(time.Minute)))
	require.NotNil(t, candles[0].OrderbookMidPriceOpen)
	assert.True(t, candles[0].OrderbookMidPriceOpen.Equal(mid))
	assert.Nil(t, candles[0].OrderbookMidPriceClose)
}
