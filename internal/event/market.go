package event

import (
	"github.com/shopspring/decimal"
)

// MarketPriceUpdate carries a new oracle price for a market.
type MarketPriceUpdate struct {
	MarketID uint32 `json:"market_id"`
	Price    string `json:"price"` // human-readable decimal

	price decimal.Decimal
}

// OraclePrice returns the parsed price.
func (m *MarketPriceUpdate) OraclePrice() decimal.Decimal {
	return m.price
}

// ParseMarketPriceUpdate decodes and validates a "market" payload.
func ParseMarketPriceUpdate(data []byte) (*MarketPriceUpdate, error) {
	var m MarketPriceUpdate
	if err := decodeJSON(SubtypeMarket, data, &m); err != nil {
		return nil, err
	}
	p, err := requirePositive(SubtypeMarket, "price", m.Price)
	if err != nil {
		return nil, err
	}
	m.price = p
	return &m, nil
}
