package core_test

import (
	"PerpIndexer/internal/cache"
	"PerpIndexer/internal/candles"
	"PerpIndexer/internal/core"
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/handler"
	"PerpIndexer/internal/ingestion"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/reference"
	"PerpIndexer/internal/testutil"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher hands every published batch to a channel.
type capturePublisher struct {
	topics chan string
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, msgs []outbound.Message) error {
	p.topics <- topic
	return nil
}

type processorEnv struct {
	store     *testutil.MemStore
	heights   *cache.HeightCache
	prices    *cache.PriceCache
	candles   *cache.CandleCache
	metrics   *observability.Metrics
	published *capturePublisher
	processor *core.BlockProcessor
}

// newProcessorEnv seeds blocks 1 and 2 with a BTC oracle price of 100 and
// warms the caches from the store.
func newProcessorEnv(t *testing.T) *processorEnv {
	t.Helper()
	st := testutil.NewMemStore()
	st.Seed(func(s *testutil.MemState) {
		for _, h := range []string{"1", "2"} {
			s.Blocks[h] = model.Block{Height: h, Time: testutil.BlockTime.Add(-time.Minute)}
		}
		p := model.OraclePrice{
			ID:                event.DeterministicID("oracle_price", "0", "2"),
			MarketID:          0,
			Price:             decimal.RequireFromString("100"),
			EffectiveAtHeight: "2",
		}
		s.OraclePrices[p.ID] = p
	})

	nop := zerolog.Nop()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	markets := reference.NewPerpetualMarkets(nil, metrics, nop)
	markets.Replace([]model.PerpetualMarket{testutil.BTCMarket, testutil.ETHMarket})

	heights := cache.NewHeightCache()
	prices := cache.NewPriceCache()
	candleCache := cache.NewCandleCache()
	resyncer := cache.NewResyncer(st, heights, prices, candleCache, metrics, nop)
	require.NoError(t, resyncer.Resync(context.Background()))
	require.Equal(t, "2", heights.Get())

	published := &capturePublisher{topics: make(chan string, 64)}
	processor := core.NewBlockProcessor(core.ProcessorDeps{
		Store:       st,
		Registry:    handler.DefaultRegistry(handler.Deps{Markets: markets, Prices: prices, Logger: nop}),
		Scheduler:   core.NewScheduler(metrics, nop),
		Gate:        core.NewHeightGate(heights, resyncer, metrics, nop),
		Candles:     candles.NewGenerator(markets, candleCache, nil, metrics, nop),
		HeightCache: heights,
		CandleCache: candleCache,
		Resyncer:    resyncer,
		Publisher:   published,
		Metrics:     metrics,
		Logger:      nop,
	})

	return &processorEnv{
		store:     st,
		heights:   heights,
		prices:    prices,
		candles:   candleCache,
		metrics:   metrics,
		published: published,
		processor: processor,
	}
}

func (e *processorEnv) deliver(t *testing.T, block *event.Block) error {
	t.Helper()
	data, err := ingestion.EncodeBlock(block)
	require.NoError(t, err)
	return e.processor.HandleMessage(context.Background(), ingestion.RawBlock{Subject: "to-ender", Data: data})
}

func priceEvent(t *testing.T, marketID uint32, price string) event.Event {
	return testutil.BlockEvent(t, event.SubtypeMarket, event.BlockEventEndBlock, 0,
		event.MarketPriceUpdate{MarketID: marketID, Price: price})
}

func requirePrice(t *testing.T, prices *cache.PriceCache, marketID uint32, want string) {
	t.Helper()
	got, err := prices.Get(marketID)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "price %s, want %s", got, want)
}

// ============================================================================
// Test: Process
// ============================================================================

func TestProcess_PriceUpdateAndRedelivery(t *testing.T) {
	env := newProcessorEnv(t)
	block := testutil.NewBlock("3", testutil.BlockTime, priceEvent(t, 0, "200"))

	require.NoError(t, env.deliver(t, block))
	assert.Equal(t, "3", env.heights.Get())
	requirePrice(t, env.prices, 0, "200")
	assert.Equal(t, 1, env.store.Commits())

	require.NoError(t, env.deliver(t, block))
	assert.Equal(t, 1, env.store.Commits(), "redelivered block is skipped")
	assert.Equal(t, "3", env.heights.Get())
	assert.Equal(t, 1.0, promtest.ToFloat64(env.metrics.BlocksSkipped.WithLabelValues("already_processed")))
}

func TestProcess_SameOrderFilledTwiceInOneBlock(t *testing.T) {
	env := newProcessorEnv(t)

	first := testutil.LimitFill("alice", "bob", event.SideBuy, "3", "50000")
	first.MakerOrder.Size = "10"
	second := testutil.LimitFill("alice", "carol", event.SideBuy, "4", "50000")
	second.MakerOrder.Size = "10"

	block := testutil.NewBlock("3", testutil.BlockTime,
		testutil.TxEvent(t, event.SubtypeOrderFill, 0, 0, first),
		testutil.TxEvent(t, event.SubtypeOrderFill, 1, 0, second),
	)
	agg, err := env.processor.Process(context.Background(), block)
	require.NoError(t, err)

	state := env.store.State()
	makerID := first.MakerOrder.OrderID.UUID()
	order, ok := state.Orders[makerID]
	require.True(t, ok)
	assert.True(t, order.TotalFilled.Equal(decimal.NewFromInt(7)), "total filled %s", order.TotalFilled)
	assert.Equal(t, model.OrderStatusOpen, order.Status)

	pos, ok := state.PerpetualPositions[testutil.PositionKey{
		SubaccountID: testutil.Subaccount("alice").UUID(),
		PerpetualID:  testutil.BTCMarket.ID,
	}]
	require.True(t, ok)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(7)), "position %s", pos.Size)
	assert.Len(t, state.Fills, 4)

	// alice's two maker fills go out as one message; bob and carol get one each.
	byTopic, err := agg.Messages()
	require.NoError(t, err)
	aliceKey := testutil.Subaccount("alice").UUID().String()
	var alice []outbound.Message
	for _, m := range byTopic[outbound.TopicSubaccounts] {
		if string(m.Key) == aliceKey {
			alice = append(alice, m)
		}
	}
	require.Len(t, byTopic[outbound.TopicSubaccounts], 3)
	require.Len(t, alice, 1)

	var merged outbound.SubaccountMessage
	require.NoError(t, json.Unmarshal(alice[0].Value, &merged))
	assert.Len(t, merged.Contents.Fills, 2)
	require.Len(t, merged.Contents.Orders, 1)
	assert.Equal(t, "7", merged.Contents.Orders[0].TotalFilled)
}

func TestProcess_BeginAndEndBlockEventsStayDistinct(t *testing.T) {
	env := newProcessorEnv(t)

	block := testutil.NewBlock("3", testutil.BlockTime,
		testutil.BlockEvent(t, event.SubtypeOrderFill, event.BlockEventEndBlock, 0,
			testutil.LimitFill("erin", "frank", event.SideBuy, "2", "50000")),
		testutil.TxEvent(t, event.SubtypeOrderFill, 0, 0,
			testutil.LimitFill("carol", "dave", event.SideBuy, "1", "50000")),
		testutil.BlockEvent(t, event.SubtypeOrderFill, event.BlockEventBeginBlock, 0,
			testutil.LimitFill("alice", "bob", event.SideBuy, "1", "50000")),
	)
	agg, err := env.processor.Process(context.Background(), block)
	require.NoError(t, err)

	state := env.store.State()
	assert.Len(t, state.Fills, 6)
	assert.Len(t, state.Events, 3)

	byTopic, err := agg.Messages()
	require.NoError(t, err)
	msgs := byTopic[outbound.TopicSubaccounts]
	require.NotEmpty(t, msgs)
	assert.Equal(t, event.BeginBlockTxIndex, msgs[0].Position.TransactionIndex)
	assert.Equal(t, event.EndBlockTxIndex, msgs[len(msgs)-1].Position.TransactionIndex)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Position.Less(msgs[i-1].Position), "message %d out of order", i)
	}
}

func TestProcess_MalformedLiquidationWritesNothing(t *testing.T) {
	env := newProcessorEnv(t)

	fill := testutil.LimitFill("alice", "bob", event.SideBuy, "1", "50000")
	fill.Order = nil
	fill.LiquidationOrder = &event.LiquidationOrder{ClobPairID: 0, PerpetualID: 0, TotalSize: "1", Price: "50000"}
	block := testutil.NewBlock("3", testutil.BlockTime, testutil.TxEvent(t, event.SubtypeOrderFill, 0, 0, fill))

	err := env.deliver(t, block)
	require.Error(t, err)
	assert.True(t, event.IsParseError(err))

	state := env.store.State()
	assert.NotContains(t, state.Blocks, "3")
	assert.Empty(t, state.Fills)
	assert.Empty(t, state.Events)
	assert.Zero(t, env.store.Commits())
	assert.Equal(t, "2", env.heights.Get())
	assert.Empty(t, env.published.topics)
}

func TestProcess_FailedWriteLeavesNoTrace(t *testing.T) {
	env := newProcessorEnv(t)
	snapshots := env.store.Snapshots()
	env.store.FailOn = func(op string) error {
		if op == "InsertFill" {
			return errors.New("disk full")
		}
		return nil
	}

	block := testutil.NewBlock("3", testutil.BlockTime,
		priceEvent(t, 0, "200"),
		testutil.TxEvent(t, event.SubtypeOrderFill, 0, 0, testutil.LimitFill("alice", "bob", event.SideBuy, "1", "50000")),
	)
	_, err := env.processor.Process(context.Background(), block)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	state := env.store.State()
	assert.NotContains(t, state.Blocks, "3")
	assert.Len(t, state.OraclePrices, 1)
	assert.Equal(t, 1, env.store.Rollbacks())
	assert.Equal(t, snapshots+1, env.store.Snapshots(), "caches are resynced")
	assert.Equal(t, "2", env.heights.Get())
	requirePrice(t, env.prices, 0, "100")
}

func TestProcess_FailedCommitRestoresPriceCache(t *testing.T) {
	env := newProcessorEnv(t)
	env.store.FailOn = func(op string) error {
		if op == "Commit" {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := env.processor.Process(context.Background(), testutil.NewBlock("3", testutil.BlockTime, priceEvent(t, 0, "200")))
	require.Error(t, err)

	requirePrice(t, env.prices, 0, "100")
	assert.Equal(t, "2", env.heights.Get())
	assert.Equal(t, 1, env.store.Rollbacks())
}

func TestProcess_ReplayIsIdempotent(t *testing.T) {
	env := newProcessorEnv(t)
	fill := testutil.LimitFill("alice", "bob", event.SideSell, "2", "50000")
	fill.MakerOrder.Size = "5"
	block := testutil.NewBlock("3", testutil.BlockTime,
		priceEvent(t, 0, "200"),
		testutil.TxEvent(t, event.SubtypeOrderFill, 0, 0, fill),
	)

	_, err := env.processor.Process(context.Background(), block)
	require.NoError(t, err)
	before := env.store.State()

	_, err = env.processor.Process(context.Background(), block)
	require.NoError(t, err)
	after := env.store.State()

	assert.Equal(t, before.Fills, after.Fills)
	assert.Equal(t, before.Orders, after.Orders)
	assert.Equal(t, before.PerpetualPositions, after.PerpetualPositions)
	assert.Equal(t, before.OraclePrices, after.OraclePrices)
	assert.Equal(t, before.Candles, after.Candles)

	pos := after.PerpetualPositions[testutil.PositionKey{
		SubaccountID: testutil.Subaccount("alice").UUID(),
		PerpetualID:  0,
	}]
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(-2)))
}

func TestProcess_UnknownSubtypeIsSkipped(t *testing.T) {
	env := newProcessorEnv(t)
	block := testutil.NewBlock("3", testutil.BlockTime,
		testutil.TxEvent(t, "stateful_order", 0, 0, map[string]string{"order": "x"}),
		priceEvent(t, 1, "3100"),
	)

	_, err := env.processor.Process(context.Background(), block)
	require.NoError(t, err)

	assert.Equal(t, "3", env.heights.Get())
	requirePrice(t, env.prices, 1, "3100")
	assert.Len(t, env.store.State().Events, 2, "the unknown event is still recorded")
	assert.Equal(t, 1.0, promtest.ToFloat64(env.metrics.UnknownSubtype.WithLabelValues("stateful_order")))
}

func TestProcess_MissingTimeNeverOpensTransaction(t *testing.T) {
	env := newProcessorEnv(t)
	block := testutil.NewBlock("3", testutil.BlockTime, priceEvent(t, 0, "200"))
	block.Time = nil

	_, err := env.processor.Process(context.Background(), block)
	require.Error(t, err)
	assert.True(t, event.IsParseError(err))
	assert.Zero(t, env.store.Commits())
	assert.Zero(t, env.store.Rollbacks())
}

func TestProcess_BookkeepingRows(t *testing.T) {
	env := newProcessorEnv(t)
	block := testutil.NewBlock("3", testutil.BlockTime,
		priceEvent(t, 0, "200"),
		testutil.TxEvent(t, event.SubtypeOrderFill, 1, 0, testutil.LimitFill("alice", "bob", event.SideBuy, "1", "50000")),
	)

	_, err := env.processor.Process(context.Background(), block)
	require.NoError(t, err)

	state := env.store.State()
	assert.Equal(t, testutil.BlockTime, state.Blocks["3"].Time)
	assert.Len(t, state.Txs, 1, "only referenced transactions get a row")
	tx, ok := state.Txs[event.TransactionID("3", 1)]
	require.True(t, ok)
	assert.Equal(t, "HASH3_1", tx.Hash)
	assert.Len(t, state.Events, 2)
}

func TestProcess_CandlesFollowTrades(t *testing.T) {
	env := newProcessorEnv(t)
	block := testutil.NewBlock("3", testutil.BlockTime,
		testutil.TxEvent(t, event.SubtypeOrderFill, 0, 0, testutil.LimitFill("alice", "bob", event.SideBuy, "2", "50000")),
	)

	_, err := env.processor.Process(context.Background(), block)
	require.NoError(t, err)

	c, ok := env.candles.Get("BTC-USD", model.CandleResolutionOneMinute)
	require.True(t, ok, "candle cache follows the commit")
	assert.Equal(t, int64(1), c.Trades)
	assert.Len(t, env.store.State().Candles, len(model.CandleResolutions))
}

// ============================================================================
// Test: HandleMessage
// ============================================================================

func TestHandleMessage_PublishesAfterCommit(t *testing.T) {
	env := newProcessorEnv(t)
	require.NoError(t, env.deliver(t, testutil.NewBlock("3", testutil.BlockTime, priceEvent(t, 0, "200"))))

	seen := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for !seen[outbound.TopicBlockHeight] || !seen[outbound.TopicMarkets] {
		select {
		case topic := <-env.published.topics:
			seen[topic] = true
		case <-deadline:
			t.Fatalf("topics published so far: %v", seen)
		}
	}
}

func TestHandleMessage_UndecodableMessage(t *testing.T) {
	env := newProcessorEnv(t)

	err := env.processor.HandleMessage(context.Background(), ingestion.RawBlock{Data: []byte{0xff, 0xff}})
	require.Error(t, err)
	assert.True(t, event.IsParseError(err))
	assert.Zero(t, env.store.Commits())
	assert.Equal(t, 1.0, promtest.ToFloat64(env.metrics.MessagesReceived))
}
