package token

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals uint8
		want     string
	}{
		{name: "three decimals", raw: "1500", decimals: 3, want: "1.5"},
		{name: "zero", raw: "0", decimals: 18, want: "0"},
		{name: "platform token", raw: "2000000000000000000000", decimals: 18, want: "2000"},
		{name: "one wei", raw: "1", decimals: 18, want: "0.000000000000000001"},
		{name: "no decimals", raw: "42", decimals: 0, want: "42"},
		{name: "beyond float precision", raw: "123456789012345678901234567890", decimals: 18, want: "123456789012.34567890123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := new(big.Int).SetString(tt.raw, 10)
			require.True(t, ok)
			got := Normalize(raw, tt.decimals)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestNormalizeNil(t *testing.T) {
	assert.True(t, Normalize(nil, 18).IsZero())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.500", Format(big.NewInt(1500), 3))
	assert.Equal(t, "0.000000000000000000", Format(big.NewInt(0), 18))
}

func TestToSmallestUnitRoundTrip(t *testing.T) {
	raw, ok := new(big.Int).SetString("987654321987654321987", 10)
	require.True(t, ok)

	back := ToSmallestUnit(Normalize(raw, 18), 18)
	assert.Equal(t, 0, raw.Cmp(back))
}
