package event

// FundingType distinguishes premium samples from settled funding values.
type FundingType string

const (
	FundingTypePremiumSample       FundingType = "PREMIUM_SAMPLE"
	FundingTypeFundingRateAndIndex FundingType = "FUNDING_RATE_AND_INDEX"
)

// FundingUpdate is the funding state of one perpetual.
type FundingUpdate struct {
	PerpetualID  uint32 `json:"perpetual_id"`
	Rate         string `json:"rate"`
	FundingIndex string `json:"funding_index,omitempty"`
}

// FundingValues is a batch of per-perpetual funding updates.
type FundingValues struct {
	Type    FundingType     `json:"type"`
	Updates []FundingUpdate `json:"updates"`
}

// ParseFundingValues decodes and validates a "funding_values" payload.
func ParseFundingValues(data []byte) (*FundingValues, error) {
	const st = SubtypeFundingValues
	var f FundingValues
	if err := decodeJSON(st, data, &f); err != nil {
		return nil, err
	}
	if f.Type != FundingTypePremiumSample && f.Type != FundingTypeFundingRateAndIndex {
		return nil, NewParseError(st, "unknown funding type %q", f.Type)
	}
	seen := make(map[uint32]bool, len(f.Updates))
	for _, u := range f.Updates {
		if seen[u.PerpetualID] {
			return nil, NewParseError(st, "duplicate update for perpetual %d", u.PerpetualID)
		}
		seen[u.PerpetualID] = true
		if _, err := requireDecimal(st, "rate", u.Rate); err != nil {
			return nil, err
		}
		if f.Type == FundingTypeFundingRateAndIndex {
			if _, err := requireDecimal(st, "funding_index", u.FundingIndex); err != nil {
				return nil, err
			}
		}
	}
	return &f, nil
}
