package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CandleResolution is a candle bucket width.
type CandleResolution string

const (
	CandleResolutionOneMinute      CandleResolution = "1MIN"
	CandleResolutionFiveMinutes    CandleResolution = "5MINS"
	CandleResolutionFifteenMinutes CandleResolution = "15MINS"
	CandleResolutionThirtyMinutes  CandleResolution = "30MINS"
	CandleResolutionOneHour        CandleResolution = "1HOUR"
	CandleResolutionFourHours      CandleResolution = "4HOURS"
	CandleResolutionOneDay         CandleResolution = "1DAY"
)

// CandleResolutions lists every resolution, narrowest first.
var CandleResolutions = []CandleResolution{
	CandleResolutionOneMinute,
	CandleResolutionFiveMinutes,
	CandleResolutionFifteenMinutes,
	CandleResolutionThirtyMinutes,
	CandleResolutionOneHour,
	CandleResolutionFourHours,
	CandleResolutionOneDay,
}

// Seconds is the bucket width of the resolution.
func (r CandleResolution) Seconds() int64 {
	switch r {
	case CandleResolutionOneMinute:
		return 60
	case CandleResolutionFiveMinutes:
		return 5 * 60
	case CandleResolutionFifteenMinutes:
		return 15 * 60
	case CandleResolutionThirtyMinutes:
		return 30 * 60
	case CandleResolutionOneHour:
		return 60 * 60
	case CandleResolutionFourHours:
		return 4 * 60 * 60
	case CandleResolutionOneDay:
		return 24 * 60 * 60
	default:
		return 0
	}
}

// StartTime returns the start of the bucket containing t.
func (r CandleResolution) StartTime(t time.Time) time.Time {
	s := t.Unix()
	return time.Unix(s-s%r.Seconds(), 0).UTC()
}

// Candle is one OHLC bucket of a market.
type Candle struct {
	ID                     uuid.UUID
	StartedAt              time.Time
	Ticker                 string
	Resolution             CandleResolution
	Low                    decimal.Decimal
	High                   decimal.Decimal
	Open                   decimal.Decimal
	Close                  decimal.Decimal
	BaseTokenVolume        decimal.Decimal
	USDVolume              decimal.Decimal
	Trades                 int64
	StartingOpenInterest   decimal.Decimal
	OrderbookMidPriceOpen  *decimal.Decimal
	OrderbookMidPriceClose *decimal.Decimal
}
