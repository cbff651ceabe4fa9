package gateway

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Cents converts a BRL amount to integer centavos, rounding half away from zero.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer centavos to a BRL amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
