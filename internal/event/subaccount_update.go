package event

import (
	"github.com/shopspring/decimal"
)

// PerpetualPositionUpdate is the settled state of one perpetual position.
type PerpetualPositionUpdate struct {
	PerpetualID  uint32 `json:"perpetual_id"`
	Size         string `json:"size"` // signed, 0 closes the position
	FundingIndex string `json:"funding_index"`
}

// AssetPositionUpdate is the settled state of one asset position.
type AssetPositionUpdate struct {
	AssetID uint32 `json:"asset_id"`
	Size    string `json:"size"` // signed
}

// SubaccountUpdate carries settled positions after a state change on chain.
type SubaccountUpdate struct {
	SubaccountID       *SubaccountID             `json:"subaccount_id"`
	PerpetualPositions []PerpetualPositionUpdate `json:"updated_perpetual_positions"`
	AssetPositions     []AssetPositionUpdate     `json:"updated_asset_positions"`
}

// ParseSubaccountUpdate decodes and validates a "subaccount_update" payload.
func ParseSubaccountUpdate(data []byte) (*SubaccountUpdate, error) {
	const st = SubtypeSubaccountUpdate
	var u SubaccountUpdate
	if err := decodeJSON(st, data, &u); err != nil {
		return nil, err
	}
	if err := requireSubaccount(st, "subaccount_id", u.SubaccountID); err != nil {
		return nil, err
	}
	for _, p := range u.PerpetualPositions {
		if _, err := requireDecimal(st, "perpetual size", p.Size); err != nil {
			return nil, err
		}
		if p.FundingIndex != "" {
			if _, err := decimal.NewFromString(p.FundingIndex); err != nil {
				return nil, WrapParseError(st, err, "funding_index is not a decimal")
			}
		}
	}
	for _, a := range u.AssetPositions {
		if _, err := requireDecimal(st, "asset size", a.Size); err != nil {
			return nil, err
		}
	}
	return &u, nil
}
