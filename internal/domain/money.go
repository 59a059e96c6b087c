package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const AmountScale = 2

// MaxAmount is the largest value a NUMERIC(12,2) amount or balance column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ParseAmount parses a positive amount with at most two decimal places.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ParseAmount: %q: %w", s, ErrInvalidAmount)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, fmt.Errorf("ParseAmount: %w", err)
	}
	return d, nil
}

func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return fmt.Errorf("more than %d decimal places: %w", AmountScale, ErrInvalidAmount)
	}
	if d.GreaterThan(MaxAmount) {
		return fmt.Errorf("above %s: %w", MaxAmount.StringFixed(AmountScale), ErrInvalidAmount)
	}
	return nil
}

func ValidateFee(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("negative fee: %w", ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return fmt.Errorf("fee has more than %d decimal places: %w", AmountScale, ErrInvalidAmount)
	}
	if d.GreaterThan(MaxAmount) {
		return fmt.Errorf("fee above %s: %w", MaxAmount.StringFixed(AmountScale), ErrInvalidAmount)
	}
	return nil
}
