package services

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"landed-cost-service/internal/money"
)

// Reasons a specific duty cannot be priced
const (
	reasonNeedsWeightUnit = "Specific duty requires quantity/weight to compute."
	reasonNeedsWeightKg   = "Specific duty requires weight_kg to compute."
	reasonUnparseable     = "Specific duty expression could not be parsed."
)

var (
	decimalLiteral = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	perKgUnit      = regexp.MustCompile(`/\s*([0-9]+(?:\.[0-9]+)?)\s*kg`)
)

// ComputeSpecificDuty prices a per-mass duty expression such as
// "35.10 EUR / 100 kg" against an item's net weight. A nil amount comes
// with the reason the expression could not be priced.
func ComputeSpecificDuty(expr string, weightKg *decimal.Decimal) (*decimal.Decimal, string) {
	lower := strings.ToLower(expr)
	if !strings.Contains(lower, "kg") {
		return nil, reasonNeedsWeightUnit
	}
	if weightKg == nil {
		return nil, reasonNeedsWeightKg
	}

	m := decimalLiteral.FindString(expr)
	if m == "" {
		return nil, reasonUnparseable
	}
	amount, err := decimal.NewFromString(m)
	if err != nil {
		return nil, reasonUnparseable
	}

	unit := decimal.NewFromInt(1)
	if um := perKgUnit.FindStringSubmatch(lower); um != nil {
		if u, err := decimal.NewFromString(um[1]); err == nil && !u.IsZero() {
			unit = u
		}
	}

	duty := money.Round4(amount.Mul(*weightKg).Div(unit))
	return &duty, ""
}
