package event

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BlockEventKind marks events emitted outside any transaction.
type BlockEventKind int32

const (
	BlockEventUnspecified BlockEventKind = iota
	BlockEventBeginBlock
	BlockEventEndBlock
)

func (k BlockEventKind) String() string {
	switch k {
	case BlockEventBeginBlock:
		return "BeginBlock"
	case BlockEventEndBlock:
		return "EndBlock"
	default:
		return "Unspecified"
	}
}

// Event subtypes understood by the handler registry.
const (
	SubtypeMarket           = "market"
	SubtypeOrderFill        = "order_fill"
	SubtypeDeleveraging     = "deleveraging"
	SubtypeTransfer         = "transfer"
	SubtypeSubaccountUpdate = "subaccount_update"
	SubtypeFundingValues    = "funding_values"
)

// Transaction indexes carried by events outside any transaction. They keep
// event ids of begin-block and end-block events apart.
const (
	BeginBlockTxIndex int32 = -2
	EndBlockTxIndex   int32 = -1

	// BlockTrailerTxIndex positions messages derived from the whole block
	// (candles, block height) after every event.
	BlockTrailerTxIndex int32 = -3
)

// Valid reports whether k names a begin-block or end-block event.
func (k BlockEventKind) Valid() bool {
	return k == BlockEventBeginBlock || k == BlockEventEndBlock
}

// TxIndex returns the transaction index events of kind k are stored under.
func (k BlockEventKind) TxIndex() int32 {
	if k == BlockEventBeginBlock {
		return BeginBlockTxIndex
	}
	return EndBlockTxIndex
}

// Event is one protocol occurrence inside a block.
type Event struct {
	Subtype          string
	Data             []byte         // JSON payload, decoded by the subtype's handler
	TransactionIndex int32          // BeginBlockTxIndex or EndBlockTxIndex for block-scoped events
	BlockEvent       BlockEventKind // only set for block-scoped events
	EventIndex       uint32
	Version          uint32
}

// IsBlockEvent reports whether the event was emitted at begin/end block.
func (e Event) IsBlockEvent() bool {
	return e.TransactionIndex == BeginBlockTxIndex || e.TransactionIndex == EndBlockTxIndex
}

// Block is one consensus block delivered as a single unit.
type Block struct {
	Height   string     // decimal, arbitrary precision
	Time     *time.Time // nil when the producer omitted it
	TxHashes []string
	Events   []Event
}

// Validate checks the envelope fields every block must carry.
func (b *Block) Validate() error {
	if b.Height == "" {
		return NewParseError("", "block height missing")
	}
	if _, err := ParseHeight(b.Height); err != nil {
		return err
	}
	if b.Time == nil {
		return NewParseError("", "block time missing at height %s", b.Height)
	}
	for _, ev := range b.Events {
		if ev.TransactionIndex >= 0 {
			continue
		}
		if !ev.BlockEvent.Valid() || ev.BlockEvent.TxIndex() != ev.TransactionIndex {
			return NewParseError(ev.Subtype, "event %d has transaction index %d and block event %s",
				ev.EventIndex, ev.TransactionIndex, ev.BlockEvent)
		}
	}
	return nil
}

// TxHash returns the hash of the transaction at txIndex, or "" when out of range.
func (b *Block) TxHash(txIndex int32) string {
	if txIndex < 0 || int(txIndex) >= len(b.TxHashes) {
		return ""
	}
	return b.TxHashes[txIndex]
}

// TransactionIndexes returns every distinct transaction index referenced by
// the block's events, ascending. Block-scoped events are not included.
func (b *Block) TransactionIndexes() []int32 {
	seen := make(map[int32]bool)
	var out []int32
	for _, ev := range b.Events {
		if ev.IsBlockEvent() || seen[ev.TransactionIndex] {
			continue
		}
		seen[ev.TransactionIndex] = true
		out = append(out, ev.TransactionIndex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Position locates an event in the chain: block height, then begin-block
// events, transactions and end-block events, then event index.
type Position struct {
	Height           string
	TransactionIndex int32
	EventIndex       uint32
}

// PositionOf returns the position of ev inside b.
func (b *Block) PositionOf(ev Event) Position {
	return Position{
		Height:           b.Height,
		TransactionIndex: ev.TransactionIndex,
		EventIndex:       ev.EventIndex,
	}
}

// Less orders positions by height, transaction index, event index.
func (p Position) Less(o Position) bool {
	if p.Height != o.Height {
		return CompareHeights(p.Height, o.Height) < 0
	}
	if p.TransactionIndex != o.TransactionIndex {
		return txOrder(p.TransactionIndex) < txOrder(o.TransactionIndex)
	}
	return p.EventIndex < o.EventIndex
}

// BlockTrailer is the position of messages derived from the whole block.
func BlockTrailer(height string) Position {
	return Position{Height: height, TransactionIndex: BlockTrailerTxIndex, EventIndex: math.MaxUint32}
}

func txOrder(txIndex int32) int64 {
	switch txIndex {
	case BeginBlockTxIndex:
		return -1
	case EndBlockTxIndex:
		return math.MaxInt32 + 1
	case BlockTrailerTxIndex:
		return math.MaxInt32 + 2
	default:
		return int64(txIndex)
	}
}

func (p Position) String() string {
	return fmt.Sprintf("%s/%d/%d", p.Height, p.TransactionIndex, p.EventIndex)
}

// ParseHeight parses a non-negative integral decimal height.
func ParseHeight(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewParseError("", "invalid block height %q: %v", s, err)
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return decimal.Zero, NewParseError("", "invalid block height %q", s)
	}
	return d, nil
}

// CompareHeights compares two decimal heights. Unparseable heights compare
// as zero; callers validate before relying on the order.
func CompareHeights(a, b string) int {
	da, err := decimal.NewFromString(a)
	if err != nil {
		da = decimal.Zero
	}
	db, err := decimal.NewFromString(b)
	if err != nil {
		db = decimal.Zero
	}
	return da.Cmp(db)
}
