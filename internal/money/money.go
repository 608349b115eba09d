// Package money converts between decimal amount strings and integer cents.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents bounds stored amounts to what NUMERIC(12,2) can hold.
const MaxCents int64 = 9_999_999_999_99

var (
	ErrInvalidAmount  = errors.New("amount must be a non-negative number with up to 2 decimal places")
	ErrAmountTooLarge = errors.New("amount is too large")
)

// Parse reads a non-negative decimal string with at most two fractional
// digits and returns it in cents.
func Parse(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, "eE+-") {
		return 0, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.Exponent() < -2 {
		return 0, ErrInvalidAmount
	}

	return FromDecimal(d)
}

// FromDecimal converts an exact decimal with at most two fractional digits to cents.
func FromDecimal(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	shifted := d.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	if shifted.GreaterThan(decimal.NewFromInt(MaxCents)) {
		return 0, ErrAmountTooLarge
	}
	return shifted.IntPart(), nil
}

// ToDecimal renders cents as an exact two-place decimal.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents as a fixed two-decimal string, e.g. 1250 -> "12.50".
func Format(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}

// Sum adds amounts in cents, failing on overflow.
func Sum(amounts ...int64) (int64, error) {
	var total int64
	for _, a := range amounts {
		next := total + a
		if (a > 0 && next < total) || (a < 0 && next > total) {
			return 0, fmt.Errorf("money: sum overflows int64")
		}
		total = next
	}
	return total, nil
}
