package query

import (
	"PerpIndexer/internal/cache"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/reference"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// QueryService answers reads from the in-memory caches. Every response
// carries the committed height it reflects.
type QueryService struct {
	heights *cache.HeightCache
	prices  *cache.PriceCache
	candles *cache.CandleCache
	markets *reference.PerpetualMarkets
}

func NewQueryService(
	heights *cache.HeightCache,
	prices *cache.PriceCache,
	candles *cache.CandleCache,
	markets *reference.PerpetualMarkets,
) *QueryService {
	return &QueryService{heights: heights, prices: prices, candles: candles, markets: markets}
}

func (qs *QueryService) GetHeight() HeightResponse {
	return HeightResponse{Height: qs.heights.Get()}
}

// GetOraclePrice parses marketID and returns its cached price.
func (qs *QueryService) GetOraclePrice(marketID string) (*PriceResponse, error) {
	id, err := strconv.ParseUint(marketID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: market_id %q", ErrInvalidArgument, marketID)
	}

	price, err := qs.prices.Get(uint32(id))
	if errors.Is(err, cache.ErrPriceNotFound) {
		return nil, fmt.Errorf("%w: no oracle price for market %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	resp := &PriceResponse{
		MarketID:   uint32(id),
		Price:      price.String(),
		AsOfHeight: qs.heights.Get(),
	}
	if qs.markets != nil {
		if m, ok := qs.markets.ByMarketID(uint32(id)); ok {
			resp.Ticker = m.Ticker
		}
	}
	return resp, nil
}

// GetCandle returns the latest candle of ticker at resolution.
func (qs *QueryService) GetCandle(ticker, resolution string) (*CandleResponse, error) {
	res := model.CandleResolution(resolution)
	if res.Seconds() == 0 {
		return nil, fmt.Errorf("%w: resolution %q", ErrInvalidArgument, resolution)
	}
	c, ok := qs.candles.Get(ticker, res)
	if !ok {
		return nil, fmt.Errorf("%w: no %s candle for %s", ErrNotFound, resolution, ticker)
	}
	resp := candleResponse(c, qs.heights.Get())
	return &resp, nil
}

// ListCandles returns every cached candle of ticker.
func (qs *QueryService) ListCandles(ticker string) (*CandlesResponse, error) {
	byRes := qs.candles.ForTicker(ticker)
	if len(byRes) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s", ErrNotFound, ticker)
	}

	height := qs.heights.Get()
	resp := &CandlesResponse{Ticker: ticker}
	for _, res := range model.CandleResolutions {
		if c, ok := byRes[res]; ok {
			resp.Candles = append(resp.Candles, candleResponse(c, height))
		}
	}
	return resp, nil
}

func candleResponse(c model.Candle, height string) CandleResponse {
	return CandleResponse{
		Ticker:                 c.Ticker,
		Resolution:             string(c.Resolution),
		StartedAt:              c.StartedAt.UTC().Format(time.RFC3339),
		Low:                    c.Low.String(),
		High:                   c.High.String(),
		Open:                   c.Open.String(),
		Close:                  c.Close.String(),
		BaseTokenVolume:        c.BaseTokenVolume.String(),
		USDVolume:              c.USDVolume.String(),
		Trades:                 c.Trades,
		StartingOpenInterest:   c.StartingOpenInterest.String(),
		OrderbookMidPriceOpen:  optional(c.OrderbookMidPriceOpen),
		OrderbookMidPriceClose: optional(c.OrderbookMidPriceClose),
		AsOfHeight:             height,
	}
}

func optional(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
