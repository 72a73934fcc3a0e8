package event

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// decodeJSON strictly decodes a handler payload.
func decodeJSON(subtype string, data []byte, v interface{}) error {
	if len(data) == 0 {
		return NewParseError(subtype, "empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapParseError(subtype, err, "decode payload")
	}
	return nil
}

// requireDecimal parses a required decimal field.
func requireDecimal(subtype, field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, NewParseError(subtype, "%s missing", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, WrapParseError(subtype, err, field+" is not a decimal")
	}
	return d, nil
}

// requirePositive parses a required decimal field that must be > 0.
func requirePositive(subtype, field, s string) (decimal.Decimal, error) {
	d, err := requireDecimal(subtype, field, s)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return d, NewParseError(subtype, "%s must be positive, got %s", field, s)
	}
	return d, nil
}

func requireSubaccount(subtype, field string, s *SubaccountID) error {
	if s == nil {
		return NewParseError(subtype, "%s missing", field)
	}
	if s.Owner == "" {
		return NewParseError(subtype, "%s owner missing", field)
	}
	return nil
}
