// Package model holds the rows the indexer writes and the reference data it reads.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Block is the bookkeeping row of a processed block.
type Block struct {
	Height string
	Time   time.Time
}

// TendermintTx is the bookkeeping row of one transaction referenced by a block.
type TendermintTx struct {
	ID               uuid.UUID
	BlockHeight      string
	TransactionIndex int32
	Hash             string
}

// TendermintEvent is the bookkeeping row of one event.
type TendermintEvent struct {
	ID               []byte // event.EventID
	BlockHeight      string
	TransactionIndex int32
	EventIndex       uint32
	Subtype          string
}

// OraclePrice is one price observation for a market.
type OraclePrice struct {
	ID                uuid.UUID
	MarketID          uint32
	Price             decimal.Decimal
	EffectiveAt       time.Time
	EffectiveAtHeight string
}

// OrderStatus of an order row.
type OrderStatus string

const (
	OrderStatusOpen   OrderStatus = "OPEN"
	OrderStatusFilled OrderStatus = "FILLED"
)

// Order is the indexed state of an order.
type Order struct {
	ID              uuid.UUID
	SubaccountID    uuid.UUID
	ClientID        uint32
	ClobPairID      uint32
	OrderFlags      uint32
	Side            string
	Size            decimal.Decimal
	TotalFilled     decimal.Decimal
	Price           decimal.Decimal
	Status          OrderStatus
	UpdatedAt       time.Time
	UpdatedAtHeight string
}

// Liquidity role of a fill.
type Liquidity string

const (
	LiquidityMaker Liquidity = "MAKER"
	LiquidityTaker Liquidity = "TAKER"
)

// FillType classifies a fill.
type FillType string

const (
	FillTypeLimit       FillType = "LIMIT"
	FillTypeLiquidated  FillType = "LIQUIDATED"
	FillTypeLiquidation FillType = "LIQUIDATION"
	FillTypeDeleveraged FillType = "DELEVERAGED"
	FillTypeOffsetting  FillType = "OFFSETTING"
)

// Fill is one side of a match.
type Fill struct {
	ID              uuid.UUID
	SubaccountID    uuid.UUID
	Side            string
	Liquidity       Liquidity
	Type            FillType
	ClobPairID      uint32
	OrderID         *uuid.UUID
	Size            decimal.Decimal
	Price           decimal.Decimal
	Fee             decimal.Decimal
	EventID         []byte
	CreatedAt       time.Time
	CreatedAtHeight string
}

// PerpetualPosition is the open position of a subaccount in a perpetual.
type PerpetualPosition struct {
	SubaccountID    uuid.UUID
	PerpetualID     uint32
	Size            decimal.Decimal // signed: long > 0, short < 0
	FundingIndex    decimal.Decimal
	UpdatedAtHeight string
}

// AssetPosition is the balance of a subaccount in an asset.
type AssetPosition struct {
	SubaccountID    uuid.UUID
	AssetID         uint32
	Size            decimal.Decimal // signed
	UpdatedAtHeight string
}

// Subaccount row.
type Subaccount struct {
	ID              uuid.UUID
	Address         string
	Number          uint32
	UpdatedAt       time.Time
	UpdatedAtHeight string
}

// Transfer row.
type Transfer struct {
	ID                    uuid.UUID
	SenderSubaccountID    *uuid.UUID
	RecipientSubaccountID *uuid.UUID
	SenderAddress         string
	RecipientAddress      string
	AssetID               uint32
	Size                  decimal.Decimal
	EventID               []byte
	CreatedAt             time.Time
	CreatedAtHeight       string
}

// FundingIndexUpdate records a settled funding index of a perpetual.
type FundingIndexUpdate struct {
	ID                uuid.UUID
	PerpetualID       uint32
	Rate              decimal.Decimal
	FundingIndex      decimal.Decimal
	OraclePrice       decimal.Decimal
	EventID           []byte
	EffectiveAt       time.Time
	EffectiveAtHeight string
}

// PerpetualMarket is the reference data of a tradable instrument.
type PerpetualMarket struct {
	ID               uint32 // perpetual id
	ClobPairID       uint32
	MarketID         uint32 // oracle market
	Ticker           string
	AtomicResolution int32
	OpenInterest     decimal.Decimal
}
