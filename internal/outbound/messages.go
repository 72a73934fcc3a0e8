package outbound

import (
	"PerpIndexer/internal/event"
)

// Topics published after a block commits.
const (
	TopicSubaccounts = "to-websockets-subaccounts"
	TopicMarkets     = "to-websockets-markets"
	TopicTrades      = "to-websockets-trades"
	TopicCandles     = "to-websockets-candles"
	TopicBlockHeight = "to-websockets-block-height"
	TopicVulcan      = "to-vulcan"
)

// Topics lists every outbound topic.
var Topics = []string{
	TopicSubaccounts,
	TopicMarkets,
	TopicTrades,
	TopicCandles,
	TopicBlockHeight,
	TopicVulcan,
}

// Message versions carried by downstream payloads.
const (
	SubaccountsVersion = "3.0.0"
	MarketsVersion     = "1.0.0"
	TradesVersion      = "2.1.0"
	CandlesVersion     = "1.0.0"
	BlockHeightVersion = "1.0.0"
)

// Message is one encoded downstream message.
type Message struct {
	Topic    string
	Key      []byte
	Value    []byte
	Headers  map[string]string
	Position event.Position
}

// ID derives a stable id for bus-level deduplication of replayed blocks.
// The block position keeps equal payloads of different blocks apart.
func (m Message) ID() string {
	return event.DeterministicID(m.Topic, m.Position.String(), string(m.Key), string(m.Value)).String()
}

// FillContent is a fill as seen by subaccount subscribers.
type FillContent struct {
	ID          string `json:"id"`
	Side        string `json:"side"`
	Liquidity   string `json:"liquidity"`
	Type        string `json:"type"`
	ClobPairID  uint32 `json:"clobPairId"`
	Ticker      string `json:"ticker,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	Size        string `json:"size"`
	Price       string `json:"price"`
	Fee         string `json:"fee"`
	CreatedAt   string `json:"createdAt"`
	BlockHeight string `json:"createdAtHeight"`
}

// OrderContent is the indexed state of an order after a fill.
type OrderContent struct {
	ID          string `json:"id"`
	ClientID    uint32 `json:"clientId"`
	ClobPairID  uint32 `json:"clobPairId"`
	Side        string `json:"side"`
	Size        string `json:"size"`
	TotalFilled string `json:"totalFilled"`
	Price       string `json:"price"`
	Status      string `json:"status"`
}

// PerpetualPositionContent is a settled perpetual position.
type PerpetualPositionContent struct {
	PerpetualID  uint32 `json:"perpetualId"`
	Market       string `json:"market,omitempty"`
	Side         string `json:"side"`
	Size         string `json:"size"`
	FundingIndex string `json:"fundingIndex,omitempty"`
}

// AssetPositionContent is a settled asset position.
type AssetPositionContent struct {
	AssetID uint32 `json:"assetId"`
	Side    string `json:"side"`
	Size    string `json:"size"`
}

// TransferContent describes a transfer touching the subaccount.
type TransferContent struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	AssetID   uint32 `json:"assetId"`
	Size      string `json:"size"`
	Type      string `json:"type"` // TRANSFER_IN, TRANSFER_OUT, DEPOSIT, WITHDRAWAL
}

// SubaccountContents is the body of a subaccount message.
type SubaccountContents struct {
	Fills              []FillContent              `json:"fills,omitempty"`
	Orders             []OrderContent             `json:"orders,omitempty"`
	PerpetualPositions []PerpetualPositionContent `json:"perpetualPositions,omitempty"`
	AssetPositions     []AssetPositionContent     `json:"assetPositions,omitempty"`
	Transfers          *TransferContent           `json:"transfers,omitempty"`
	BlockHeight        string                     `json:"blockHeight"`
}

// SubaccountMessage goes to to-websockets-subaccounts, keyed by subaccount.
type SubaccountMessage struct {
	BlockHeight      string             `json:"blockHeight"`
	TransactionIndex int32              `json:"transactionIndex"`
	EventIndex       uint32             `json:"eventIndex"`
	SubaccountID     event.SubaccountID `json:"subaccountId"`
	Contents         SubaccountContents `json:"contents"`
	Version          string             `json:"version"`
}

// OraclePriceContent is one oracle price update.
type OraclePriceContent struct {
	OraclePrice       string `json:"oraclePrice"`
	EffectiveAt       string `json:"effectiveAt"`
	EffectiveAtHeight string `json:"effectiveAtHeight"`
	MarketID          uint32 `json:"marketId"`
}

// FundingContent is one settled funding value.
type FundingContent struct {
	PerpetualID  uint32 `json:"perpetualId"`
	Rate         string `json:"rate"`
	FundingIndex string `json:"fundingIndex,omitempty"`
	OraclePrice  string `json:"oraclePrice"`
}

// MarketContents is the body of a markets message. Maps are keyed by ticker.
type MarketContents struct {
	OraclePrices map[string]OraclePriceContent `json:"oraclePrices,omitempty"`
	Funding      map[string]FundingContent     `json:"funding,omitempty"`
}

// MarketMessage goes to to-websockets-markets.
type MarketMessage struct {
	Contents MarketContents `json:"contents"`
	Version  string         `json:"version"`
}

// TradeContent is one public trade.
type TradeContent struct {
	ID        string `json:"id"`
	Size      string `json:"size"`
	Price     string `json:"price"`
	Side      string `json:"side"`
	CreatedAt string `json:"createdAt"`
	Type      string `json:"type"`
}

// TradeMessage holds the trades of one clob pair. Trades of the same clob
// pair in a block are merged into one message before publishing.
type TradeMessage struct {
	BlockHeight string         `json:"blockHeight"`
	ClobPairID  uint32         `json:"clobPairId"`
	Trades      []TradeContent `json:"trades"`
	Version     string         `json:"version"`
}

// CandleContent is a candle as sent to subscribers.
type CandleContent struct {
	StartedAt              string `json:"startedAt"`
	Ticker                 string `json:"ticker"`
	Resolution             string `json:"resolution"`
	Low                    string `json:"low"`
	High                   string `json:"high"`
	Open                   string `json:"open"`
	Close                  string `json:"close"`
	BaseTokenVolume        string `json:"baseTokenVolume"`
	USDVolume              string `json:"usdVolume"`
	Trades                 int64  `json:"trades"`
	StartingOpenInterest   string `json:"startingOpenInterest"`
	OrderbookMidPriceOpen  string `json:"orderbookMidPriceOpen,omitempty"`
	OrderbookMidPriceClose string `json:"orderbookMidPriceClose,omitempty"`
}

// CandleMessage goes to to-websockets-candles, keyed by ticker.
type CandleMessage struct {
	ClobPairID uint32        `json:"clobPairId"`
	Resolution string        `json:"resolution"`
	Contents   CandleContent `json:"contents"`
	Version    string        `json:"version"`
}

// OrderUpdateMessage goes to to-vulcan so the order book can drop filled
// orders. Keyed by order id.
type OrderUpdateMessage struct {
	OrderID     string `json:"orderId"`
	TotalFilled string `json:"totalFilled"`
	Status      string `json:"status"`
	BlockHeight string `json:"blockHeight"`
}

// BlockHeightMessage announces a committed block.
type BlockHeightMessage struct {
	BlockHeight string `json:"blockHeight"`
	Time        string `json:"time"`
	Version     string `json:"version"`
}
