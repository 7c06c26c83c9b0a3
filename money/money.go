// Package money converts between integer minor units and decimal amounts.
// Ledger arithmetic stays in cents; decimals only appear at the edges
// (provider payloads, request parsing, prompts).
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Epsilon is half a minor unit. Balances within it are treated as settled.
var Epsilon = decimal.New(5, -3)

// FromDecimal rounds half away from zero to two places and returns cents.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Parse reads a decimal string such as "12.345" into cents.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Format renders cents with exactly two decimals, e.g. 1234 -> "12.34".
func Format(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}

// IsZero reports whether an amount given in currency units is within Epsilon of zero.
func IsZero(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(Epsilon)
}
