package query

// HeightResponse is the last committed block height.
type HeightResponse struct {
	Height string `json:"height"`
}

// PriceResponse is the latest committed oracle price of a market.
type PriceResponse struct {
	MarketID   uint32 `json:"market_id"`
	Ticker     string `json:"ticker,omitempty"`
	Price      string `json:"price"`
	AsOfHeight string `json:"as_of_height"`
}

// CandleResponse is the most recent candle of a ticker and resolution.
type CandleResponse struct {
	Ticker                 string  `json:"ticker"`
	Resolution             string  `json:"resolution"`
	StartedAt              string  `json:"started_at"`
	Low                    string  `json:"low"`
	High                   string  `json:"high"`
	Open                   string  `json:"open"`
	Close                  string  `json:"close"`
	BaseTokenVolume        string  `json:"base_token_volume"`
	USDVolume              string  `json:"usd_volume"`
	Trades                 int64   `json:"trades"`
	StartingOpenInterest   string  `json:"starting_open_interest"`
	OrderbookMidPriceOpen  *string `json:"orderbook_mid_price_open"`
	OrderbookMidPriceClose *string `json:"orderbook_mid_price_close"`
	AsOfHeight             string  `json:"as_of_height"`
}

// CandlesResponse lists the cached candles of a ticker, narrowest resolution first.
type CandlesResponse struct {
	Ticker  string           `json:"ticker"`
	Candles []CandleResponse `json:"candles"`
}
