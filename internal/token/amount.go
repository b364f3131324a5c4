package token

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Normalize converts a smallest-unit amount into its decimal display amount.
// The conversion only shifts the exponent, so no precision is lost.
func Normalize(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// Format renders a smallest-unit amount as fixed-point text with all decimals.
func Format(raw *big.Int, decimals uint8) string {
	return Normalize(raw, decimals).StringFixed(int32(decimals))
}

// ToSmallestUnit converts a display amount back into smallest units,
// truncating anything below the token precision.
func ToSmallestUnit(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}
