package event_test

import (
	"PerpIndexer/internal/event"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test: identifiers
// ============================================================================

func TestDeterministicID_Stable(t *testing.T) {
	a := event.DeterministicID("x", "1")
	assert.Equal(t, a, event.DeterministicID("x", "1"))
	assert.NotEqual(t, a, event.DeterministicID("x", "2"))
	assert.Equal(t, 5, int(a.Version()))
}

func TestEventID_Layout(t *testing.T) {
	id := event.EventID(event.Position{Height: "12", TransactionIndex: 3, EventIndex: 7})
	assert.Equal(t, "313200"+"00000003"+"00000007", hex.EncodeToString(id))

	end := event.EventID(event.Position{Height: "12", TransactionIndex: event.EndBlockTxIndex, EventIndex: 0})
	assert.Equal(t, "313200"+"ffffffff"+"00000000", hex.EncodeToString(end))

	begin := event.EventID(event.Position{Height: "12", TransactionIndex: event.BeginBlockTxIndex, EventIndex: 0})
	assert.Equal(t, "313200"+"fffffffe"+"00000000", hex.EncodeToString(begin))
}

func TestBlockEventKind_TxIndex(t *testing.T) {
	assert.Equal(t, event.BeginBlockTxIndex, event.BlockEventBeginBlock.TxIndex())
	assert.Equal(t, event.EndBlockTxIndex, event.BlockEventEndBlock.TxIndex())
	assert.True(t, event.BlockEventBeginBlock.Valid())
	assert.True(t, event.BlockEventEndBlock.Valid())
	assert.False(t, event.BlockEventUnspecified.Valid())
	assert.False(t, event.BlockEventKind(3).Valid())
}

func TestEventID_DistinctAcrossHeights(t *testing.T) {
	// "1"/tx 12 and "11"/tx 2 must not collide.
	a := event.EventIDHex(event.Position{Height: "1", TransactionIndex: 12})
	b := event.EventIDHex(event.Position{Height: "11", TransactionIndex: 2})
	assert.NotEqual(t, a, b)
}

func TestSubaccountAndOrderIDs(t *testing.T) {
	alice := event.SubaccountID{Owner: "alice", Number: 0}
	assert.Equal(t, alice.UUID(), event.SubaccountID{Owner: "alice"}.UUID())
	assert.NotEqual(t, alice.UUID(), event.SubaccountID{Owner: "alice", Number: 1}.UUID())
	assert.Equal(t, "alice/0", alice.String())

	short := event.OrderID{SubaccountID: alice, ClientID: 1}
	long := short
	long.OrderFlags = event.OrderFlagLongTerm
	assert.NotEqual(t, short.UUID(), long.UUID())
	assert.False(t, short.IsStateful())
	assert.True(t, long.IsStateful())
	assert.True(t, event.OrderID{OrderFlags: event.OrderFlagConditional}.IsStateful())
}

// ============================================================================
// Test: heights and positions
// ============================================================================

func TestParseHeight(t *testing.T) {
	for _, ok := range []string{"0", "1", "18446744073709551617"} {
		_, err := event.ParseHeight(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "x", "-2", "1.5"} {
		_, err := event.ParseHeight(bad)
		require.Error(t, err, bad)
		assert.True(t, event.IsParseError(err))
	}
}

func TestCompareHeights_Numeric(t *testing.T) {
	assert.Equal(t, -1, event.CompareHeights("9", "10"))
	assert.Equal(t, 0, event.CompareHeights("10", "10"))
	assert.Equal(t, 1, event.CompareHeights("100", "99"))
}

func TestPosition_Less(t *testing.T) {
	begin := event.Position{Height: "5", TransactionIndex: event.BeginBlockTxIndex, EventIndex: 9}
	tx0 := event.Position{Height: "5", TransactionIndex: 0, EventIndex: 0}
	tx0b := event.Position{Height: "5", TransactionIndex: 0, EventIndex: 1}
	lastTx := event.Position{Height: "5", TransactionIndex: 1 << 30}
	end := event.Position{Height: "5", TransactionIndex: event.EndBlockTxIndex, EventIndex: 0}
	trailer := event.BlockTrailer("5")
	next := event.Position{Height: "10", TransactionIndex: event.BeginBlockTxIndex}

	ordered := []event.Position{begin, tx0, tx0b, lastTx, end, trailer, next}
	for i := 0; i+1 < len(ordered); i++ {
		assert.True(t, ordered[i].Less(ordered[i+1]), "%s before %s", ordered[i], ordered[i+1])
		assert.False(t, ordered[i+1].Less(ordered[i]), "%s after %s", ordered[i+1], ordered[i])
	}
	assert.False(t, tx0.Less(tx0))
	assert.Equal(t, "5/0/1", tx0b.String())
}

func TestEventID_BeginAndEndBlockDistinct(t *testing.T) {
	begin := event.Position{Height: "5", TransactionIndex: event.BeginBlockTxIndex}
	end := event.Position{Height: "5", TransactionIndex: event.EndBlockTxIndex}
	assert.NotEqual(t, event.EventID(begin), event.EventID(end))
}

// ============================================================================
// Test: Block
// ============================================================================

func TestBlock_Validate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, (&event.Block{Height: "3", Time: &now}).Validate())

	begin := event.Event{TransactionIndex: event.BeginBlockTxIndex, BlockEvent: event.BlockEventBeginBlock}
	assert.NoError(t, (&event.Block{Height: "3", Time: &now, Events: []event.Event{begin}}).Validate())

	for _, bad := range []event.Event{
		{TransactionIndex: event.EndBlockTxIndex},
		{TransactionIndex: event.EndBlockTxIndex, BlockEvent: event.BlockEventBeginBlock},
		{TransactionIndex: event.BlockTrailerTxIndex, BlockEvent: event.BlockEventEndBlock},
	} {
		err := (&event.Block{Height: "3", Time: &now, Events: []event.Event{bad}}).Validate()
		require.Error(t, err)
		assert.True(t, event.IsParseError(err))
	}

	err := (&event.Block{Height: "3"}).Validate()
	require.Error(t, err)
	assert.True(t, event.IsParseError(err))

	assert.Error(t, (&event.Block{Time: &now}).Validate())
	assert.Error(t, (&event.Block{Height: "3.1", Time: &now}).Validate())
}

func TestBlock_TransactionIndexes(t *testing.T) {
	b := &event.Block{
		Height:   "3",
		TxHashes: []string{"A", "B", "C"},
		Events: []event.Event{
			{TransactionIndex: 2},
			{TransactionIndex: event.EndBlockTxIndex},
			{TransactionIndex: event.BeginBlockTxIndex},
			{TransactionIndex: 0},
			{TransactionIndex: 2},
		},
	}
	assert.Equal(t, []int32{0, 2}, b.TransactionIndexes())
	assert.Equal(t, "C", b.TxHash(2))
	assert.Equal(t, "", b.TxHash(3))
	assert.Equal(t, "", b.TxHash(event.EndBlockTxIndex))
}

// ============================================================================
// Test: payload validation
// ============================================================================

func TestParseOrderFill(t *testing.T) {
	valid := `{
		"maker_order": {"order_id": {"subaccount_id": {"owner": "alice"}, "client_id": 1}, "side": "BUY", "size": "5", "price": "100"},
		"order": {"order_id": {"subaccount_id": {"owner": "bob"}, "client_id": 2}, "side": "SELL", "size": "2", "price": "99"},
		"fill_amount": "2", "maker_fee": "-0.01", "taker_fee": "0.05"
	}`
	f, err := event.ParseOrderFill([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, "100", f.Price().String(), "fills execute at the maker price")
	assert.Equal(t, "-0.01", f.MakerFeeAmount().String())
	assert.Equal(t, event.SideSell, f.TakerSide())
	assert.Equal(t, "bob", f.TakerSubaccount().Owner)
	assert.False(t, f.IsLiquidation())

	cases := map[string]string{
		"no maker":      `{"order": {}, "fill_amount": "1", "maker_fee": "0", "taker_fee": "0"}`,
		"no taker":      `{"maker_order": {"order_id": {"subaccount_id": {"owner": "a"}}, "side": "BUY", "size": "1", "price": "1"}, "fill_amount": "1", "maker_fee": "0", "taker_fee": "0"}`,
		"bad side":      `{"maker_order": {"order_id": {"subaccount_id": {"owner": "a"}}, "side": "UP", "size": "1", "price": "1"}, "fill_amount": "1", "maker_fee": "0", "taker_fee": "0"}`,
		"zero amount":   `{"maker_order": {"order_id": {"subaccount_id": {"owner": "a"}}, "side": "BUY", "size": "1", "price": "1"}, "liquidation_order": {"liquidated": {"owner": "c"}}, "fill_amount": "0", "maker_fee": "0", "taker_fee": "0"}`,
		"no liquidated": `{"maker_order": {"order_id": {"subaccount_id": {"owner": "a"}}, "side": "BUY", "size": "1", "price": "1"}, "liquidation_order": {"clob_pair_id": 0}, "fill_amount": "1", "maker_fee": "0", "taker_fee": "0"}`,
		"clob mismatch": `{"maker_order": {"order_id": {"subaccount_id": {"owner": "a"}}, "side": "BUY", "size": "1", "price": "1"}, "order": {"order_id": {"subaccount_id": {"owner": "b"}, "clob_pair_id": 1}, "side": "SELL", "size": "1"}, "fill_amount": "1", "maker_fee": "0", "taker_fee": "0"}`,
		"not json":      `{`,
	}
	for name, payload := range cases {
		_, err := event.ParseOrderFill([]byte(payload))
		require.Error(t, err, name)
		assert.True(t, event.IsParseError(err), name)
	}
}

func TestParseTransfer(t *testing.T) {
	tr, err := event.ParseTransfer([]byte(`{"sender": {"address": "w1"}, "recipient": {"subaccount_id": {"owner": "bob"}}, "asset_id": 0, "amount": "1.5"}`))
	require.NoError(t, err)
	assert.Equal(t, "1.5", tr.Size().String())
	assert.Equal(t, "w1", tr.Sender.Key())

	_, err = event.ParseTransfer([]byte(`{"sender": {"address": "w1"}, "recipient": {"address": "w2"}, "amount": "1"}`))
	assert.True(t, event.IsParseError(err), "wallet to wallet")

	_, err = event.ParseTransfer([]byte(`{"sender": {}, "recipient": {"address": "w2"}, "amount": "1"}`))
	assert.True(t, event.IsParseError(err), "sender missing")
}

func TestParseFundingValues(t *testing.T) {
	_, err := event.ParseFundingValues([]byte(`{"type": "PREMIUM_SAMPLE", "updates": [{"perpetual_id": 0, "rate": "0.1"}]}`))
	require.NoError(t, err)

	bad := map[string]string{
		"unknown type":  `{"type": "X", "updates": []}`,
		"duplicate":     `{"type": "PREMIUM_SAMPLE", "updates": [{"perpetual_id": 0, "rate": "1"}, {"perpetual_id": 0, "rate": "2"}]}`,
		"missing index": `{"type": "FUNDING_RATE_AND_INDEX", "updates": [{"perpetual_id": 0, "rate": "1"}]}`,
	}
	for name, payload := range bad {
		_, err := event.ParseFundingValues([]byte(payload))
		assert.True(t, event.IsParseError(err), name)
	}
}

func TestParseDeleveraging(t *testing.T) {
	d, err := event.ParseDeleveraging([]byte(`{"liquidated": {"owner": "c"}, "offsetting": {"owner": "d"}, "perpetual_id": 1, "fill_amount": "2", "price": "10", "is_buy": false}`))
	require.NoError(t, err)
	assert.Equal(t, event.SideSell, d.LiquidatedSide())
	assert.Equal(t, event.SideBuy, d.LiquidatedSide().Opposite())

	_, err = event.ParseDeleveraging([]byte(`{"liquidated": {"owner": "c"}, "perpetual_id": 1, "fill_amount": "2", "price": "10"}`))
	assert.True(t, event.IsParseError(err))
}

func TestParseError_Message(t *testing.T) {
	err := event.NewParseError(event.SubtypeMarket, "market %d not found", 4)
	assert.Equal(t, "parse market event: market 4 not found", err.Error())
	assert.Equal(t, "parse block: height missing", event.NewParseError("", "height missing").Error())
}
