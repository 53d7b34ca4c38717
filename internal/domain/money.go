package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the precision of account amounts.
const MoneyPlaces = 2

// ParseAmount converts a wire float into a decimal, rejecting NaN,
// infinities and values with more than places decimal places.
func ParseAmount(f float64, places int32) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("amount must be a finite number")
	}
	d := decimal.NewFromFloat(f)
	if !d.Equal(d.Round(places)) {
		return decimal.Zero, fmt.Errorf("amount must have at most %d decimal places", places)
	}
	return d, nil
}

// ToFloat converts a decimal for JSON responses.
func ToFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
