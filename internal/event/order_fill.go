package event

import (
	"github.com/shopspring/decimal"
)

// Side of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() decimal.Decimal {
	if s == SideBuy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// Order is an order as it appears inside a fill.
type Order struct {
	OrderID      OrderID `json:"order_id"`
	Side         Side    `json:"side"`
	Size         string  `json:"size"`
	Price        string  `json:"price"`
	GoodTilBlock uint32  `json:"good_til_block,omitempty"`
}

// LiquidationOrder is the protocol-generated taker of a liquidation.
type LiquidationOrder struct {
	Liquidated  *SubaccountID `json:"liquidated"`
	ClobPairID  uint32        `json:"clob_pair_id"`
	PerpetualID uint32        `json:"perpetual_id"`
	TotalSize   string        `json:"total_size"`
	IsBuy       bool          `json:"is_buy"`
	Price       string        `json:"price"`
}

// OrderFill is a match between a resting maker order and a taker, which is
// either a regular order or a liquidation order.
type OrderFill struct {
	MakerOrder       *Order            `json:"maker_order"`
	Order            *Order            `json:"order,omitempty"`
	LiquidationOrder *LiquidationOrder `json:"liquidation_order,omitempty"`
	FillAmount       string            `json:"fill_amount"`
	MakerFee         string            `json:"maker_fee"`
	TakerFee         string            `json:"taker_fee"`

	fillAmount decimal.Decimal
	makerFee   decimal.Decimal
	takerFee   decimal.Decimal
	price      decimal.Decimal
}

// IsLiquidation reports whether the taker is a liquidation order.
func (f *OrderFill) IsLiquidation() bool {
	return f.LiquidationOrder != nil
}

// Amount is the filled base size.
func (f *OrderFill) Amount() decimal.Decimal { return f.fillAmount }

// Price is the execution price, which is always the maker's price.
func (f *OrderFill) Price() decimal.Decimal { return f.price }

func (f *OrderFill) MakerFeeAmount() decimal.Decimal { return f.makerFee }

func (f *OrderFill) TakerFeeAmount() decimal.Decimal { return f.takerFee }

// TakerSubaccount is the subaccount on the taker side.
func (f *OrderFill) TakerSubaccount() SubaccountID {
	if f.LiquidationOrder != nil {
		return *f.LiquidationOrder.Liquidated
	}
	return f.Order.OrderID.SubaccountID
}

// TakerSide is the taker's side.
func (f *OrderFill) TakerSide() Side {
	if f.LiquidationOrder != nil {
		if f.LiquidationOrder.IsBuy {
			return SideBuy
		}
		return SideSell
	}
	return f.Order.Side
}

// ClobPairID is the instrument the fill executed on.
func (f *OrderFill) ClobPairID() uint32 {
	return f.MakerOrder.OrderID.ClobPairID
}

// ParseOrderFill decodes and validates an "order_fill" payload.
func ParseOrderFill(data []byte) (*OrderFill, error) {
	const st = SubtypeOrderFill
	var f OrderFill
	if err := decodeJSON(st, data, &f); err != nil {
		return nil, err
	}
	if f.MakerOrder == nil {
		return nil, NewParseError(st, "maker_order missing")
	}
	if err := validateOrder(st, "maker_order", f.MakerOrder); err != nil {
		return nil, err
	}

	switch {
	case f.Order != nil && f.LiquidationOrder != nil:
		return nil, NewParseError(st, "order and liquidation_order are mutually exclusive")
	case f.Order != nil:
		if err := validateOrder(st, "order", f.Order); err != nil {
			return nil, err
		}
		if f.Order.OrderID.ClobPairID != f.MakerOrder.OrderID.ClobPairID {
			return nil, NewParseError(st, "maker and taker clob pairs differ")
		}
	case f.LiquidationOrder != nil:
		if err := requireSubaccount(st, "liquidation_order.liquidated", f.LiquidationOrder.Liquidated); err != nil {
			return nil, err
		}
		if f.LiquidationOrder.ClobPairID != f.MakerOrder.OrderID.ClobPairID {
			return nil, NewParseError(st, "maker and liquidation clob pairs differ")
		}
	default:
		return nil, NewParseError(st, "taker order missing")
	}

	var err error
	if f.fillAmount, err = requirePositive(st, "fill_amount", f.FillAmount); err != nil {
		return nil, err
	}
	if f.makerFee, err = requireDecimal(st, "maker_fee", f.MakerFee); err != nil {
		return nil, err
	}
	if f.takerFee, err = requireDecimal(st, "taker_fee", f.TakerFee); err != nil {
		return nil, err
	}
	if f.price, err = requirePositive(st, "maker_order.price", f.MakerOrder.Price); err != nil {
		return nil, err
	}
	return &f, nil
}

func validateOrder(st, field string, o *Order) error {
	if err := requireSubaccount(st, field+".order_id.subaccount_id", &o.OrderID.SubaccountID); err != nil {
		return err
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return NewParseError(st, "%s.side invalid: %q", field, o.Side)
	}
	if _, err := requirePositive(st, field+".size", o.Size); err != nil {
		return err
	}
	return nil
}
