// Package money holds the decimal conventions shared by the calculator
// and the rate providers. All monetary amounts are rounded half-up to
// four decimal places at the point they become outputs.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"£": "GBP",
	"€": "EUR",
	"$": "USD",
}

// Round4 rounds half-up to 4 decimal places
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

// NormalizeCurrency maps symbols and loose casing onto ISO 4217 codes
func NormalizeCurrency(s string) string {
	s = strings.TrimSpace(s)
	if iso, ok := currencySymbols[s]; ok {
		return iso
	}
	return strings.ToUpper(s)
}

// Convert applies an FX rate to an amount and rounds the result
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return Round4(amount.Mul(rate))
}

// Ratio returns part/whole, or zero when whole is zero
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole)
}
