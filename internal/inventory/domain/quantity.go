package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quantities and costs are stored as NUMERIC(18, 4).
const (
	QuantityScale     = 4
	quantityPrecision = 18
)

var quantityLimit = decimal.New(1, quantityPrecision-QuantityScale)

// checkStorable records a problem for field in details when d cannot be
// stored without rounding or overflow. Trailing zeros are not counted.
func checkStorable(details map[string]string, field string, d decimal.Decimal) {
	if _, taken := details[field]; taken {
		return
	}
	switch {
	case !d.Round(QuantityScale).Equal(d):
		details[field] = fmt.Sprintf("must have at most %d decimal places", QuantityScale)
	case d.Abs().GreaterThanOrEqual(quantityLimit):
		details[field] = fmt.Sprintf("must be less than %s", quantityLimit)
	}
}
