package service

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

const maxAmountScale = 8

// ValidateAmount rejects non-positive amounts and amounts finer than the
// ledger's numeric(20,8) columns.
func ValidateAmount(amt decimal.Decimal) error {
	if !amt.IsPositive() {
		return ErrInvalidAmount
	}
	if !amt.Equal(amt.Truncate(maxAmountScale)) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amt)
	}
	return nil
}

// ParseAmount accepts a JSON number or a quoted decimal string. NaN and
// infinities are not decimals and fail here.
func ParseAmount(raw []byte) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, ErrInvalidAmount
	}
	raw = bytes.Trim(raw, `"`)
	amt, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return amt, ValidateAmount(amt)
}
