package event

import (
	"github.com/shopspring/decimal"
)

// Deleveraging closes a liquidated position against an offsetting subaccount
// without going through the book.
type Deleveraging struct {
	Liquidated  *SubaccountID `json:"liquidated"`
	Offsetting  *SubaccountID `json:"offsetting"`
	PerpetualID uint32        `json:"perpetual_id"`
	FillAmount  string        `json:"fill_amount"`
	Price       string        `json:"price"`
	IsBuy       bool          `json:"is_buy"` // side of the liquidated subaccount

	fillAmount decimal.Decimal
	price      decimal.Decimal
}

func (d *Deleveraging) Amount() decimal.Decimal { return d.fillAmount }

func (d *Deleveraging) FillPrice() decimal.Decimal { return d.price }

// LiquidatedSide is the side taken by the liquidated subaccount.
func (d *Deleveraging) LiquidatedSide() Side {
	if d.IsBuy {
		return SideBuy
	}
	return SideSell
}

// ParseDeleveraging decodes and validates a "deleveraging" payload.
func ParseDeleveraging(data []byte) (*Deleveraging, error) {
	const st = SubtypeDeleveraging
	var d Deleveraging
	if err := decodeJSON(st, data, &d); err != nil {
		return nil, err
	}
	if err := requireSubaccount(st, "liquidated", d.Liquidated); err != nil {
		return nil, err
	}
	if err := requireSubaccount(st, "offsetting", d.Offsetting); err != nil {
		return nil, err
	}
	var err error
	if d.fillAmount, err = requirePositive(st, "fill_amount", d.FillAmount); err != nil {
		return nil, err
	}
	if d.price, err = requirePositive(st, "price", d.Price); err != nil {
		return nil, err
	}
	return &d, nil
}
