// Package money converts between stored minor units and displayed amounts.
// Arithmetic on balances stays in int64 minor units; decimals are for the edges.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const minorExp = 2

// Major renders minor units (pesewas) as a major-unit decimal
func Major(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorExp)
}

// Format renders minor units for humans, e.g. "GHS 12.50"
func Format(minor int64, currency string) string {
	return fmt.Sprintf("%s %s", currency, Major(minor).StringFixed(minorExp))
}
