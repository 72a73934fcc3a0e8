package testutil

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// BlockTime is the default time of test blocks.
var BlockTime = time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)

// NewBlock builds a block at height with one tx hash per distinct
// transaction index referenced by events.
func NewBlock(height string, at time.Time, events ...event.Event) *event.Block {
	b := &event.Block{Height: height, Time: &at, Events: events}
	maxIdx := int32(-1)
	for _, ev := range events {
		if ev.TransactionIndex > maxIdx {
			maxIdx = ev.TransactionIndex
		}
	}
	for i := int32(0); i <= maxIdx; i++ {
		b.TxHashes = append(b.TxHashes, fmt.Sprintf("HASH%s_%d", height, i))
	}
	return b
}

// TxEvent builds a transaction event with payload marshalled to JSON.
func TxEvent(t *testing.T, subtype string, txIndex int32, eventIndex uint32, payload interface{}) event.Event {
	t.Helper()
	return event.Event{
		Subtype:          subtype,
		Data:             mustJSON(t, payload),
		TransactionIndex: txIndex,
		EventIndex:       eventIndex,
		Version:          1,
	}
}

// BlockEvent builds a block-scoped event.
func BlockEvent(t *testing.T, subtype string, kind event.BlockEventKind, eventIndex uint32, payload interface{}) event.Event {
	t.Helper()
	return event.Event{
		Subtype:          subtype,
		Data:             mustJSON(t, payload),
		TransactionIndex: kind.TxIndex(),
		BlockEvent:       kind,
		EventIndex:       eventIndex,
		Version:          1,
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	if b, ok := v.([]byte); ok {
		return b
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

// Subaccount returns a subaccount id for owner/0.
func Subaccount(owner string) *event.SubaccountID {
	return &event.SubaccountID{Owner: owner, Number: 0}
}

// BTCMarket and ETHMarket are the reference markets used across tests.
var (
	BTCMarket = model.PerpetualMarket{
		ID: 0, ClobPairID: 0, MarketID: 0, Ticker: "BTC-USD",
		AtomicResolution: -10, OpenInterest: decimal.RequireFromString("120.5"),
	}
	ETHMarket = model.PerpetualMarket{
		ID: 1, ClobPairID: 1, MarketID: 1, Ticker: "ETH-USD",
		AtomicResolution: -9, OpenInterest: decimal.RequireFromString("3000"),
	}
)

// LimitFill builds an order_fill payload between two regular orders on clob pair 0.
func LimitFill(maker, taker string, makerSide event.Side, size, price string) event.OrderFill {
	return event.OrderFill{
		MakerOrder: &event.Order{
			OrderID: event.OrderID{SubaccountID: *Subaccount(maker), ClientID: 1, ClobPairID: 0},
			Side:    makerSide,
			Size:    size,
			Price:   price,
		},
		Order: &event.Order{
			OrderID: event.OrderID{SubaccountID: *Subaccount(taker), ClientID: 2, ClobPairID: 0},
			Side:    makerSide.Opposite(),
			Size:    size,
			Price:   price,
		},
		FillAmount: size,
		MakerFee:   "0.1",
		TakerFee:   "0.5",
	}
}
