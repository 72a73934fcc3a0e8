package event

import (
	"github.com/shopspring/decimal"
)

// TransferAccount is one end of a transfer: a subaccount, or a plain wallet
// address for deposits and withdrawals.
type TransferAccount struct {
	SubaccountID *SubaccountID `json:"subaccount_id,omitempty"`
	Address      string        `json:"address,omitempty"`
}

// Key renders the account for derived ids.
func (a TransferAccount) Key() string {
	if a.SubaccountID != nil {
		return a.SubaccountID.UUID().String()
	}
	return a.Address
}

func (a TransferAccount) valid() bool {
	return (a.SubaccountID != nil && a.SubaccountID.Owner != "") || a.Address != ""
}

// Transfer moves an asset between subaccounts, or in or out of one.
type Transfer struct {
	Sender    TransferAccount `json:"sender"`
	Recipient TransferAccount `json:"recipient"`
	AssetID   uint32          `json:"asset_id"`
	Amount    string          `json:"amount"`

	amount decimal.Decimal
}

func (t *Transfer) Size() decimal.Decimal { return t.amount }

// ParseTransfer decodes and validates a "transfer" payload.
func ParseTransfer(data []byte) (*Transfer, error) {
	const st = SubtypeTransfer
	var t Transfer
	if err := decodeJSON(st, data, &t); err != nil {
		return nil, err
	}
	if !t.Sender.valid() {
		return nil, NewParseError(st, "sender missing")
	}
	if !t.Recipient.valid() {
		return nil, NewParseError(st, "recipient missing")
	}
	if t.Sender.SubaccountID == nil && t.Recipient.SubaccountID == nil {
		return nil, NewParseError(st, "transfer must involve a subaccount")
	}
	var err error
	if t.amount, err = requirePositive(st, "amount", t.Amount); err != nil {
		return nil, err
	}
	return &t, nil
}
