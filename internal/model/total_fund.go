package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// TotalFund is the normalized total of one token across an aggregation.
type TotalFund struct {
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// Zero returns a zero-valued total carrying the same token identity.
func (t TotalFund) Zero() TotalFund {
	return TotalFund{TokenAddress: t.TokenAddress, TokenSymbol: t.TokenSymbol, TotalAmount: decimal.Zero}
}

// OptionalTotal is a TotalFund that may be absent.
type OptionalTotal struct {
	total   TotalFund
	present bool
}

// SomeTotal wraps a present total.
func SomeTotal(t TotalFund) OptionalTotal {
	return OptionalTotal{total: t, present: true}
}

// NoTotal returns the absent total.
func NoTotal() OptionalTotal {
	return OptionalTotal{}
}

// Get returns the total and whether it is present.
func (o OptionalTotal) Get() (TotalFund, bool) {
	return o.total, o.present
}

// IsPresent reports whether the total exists.
func (o OptionalTotal) IsPresent() bool {
	return o.present
}

// Combine merges two optional totals. An absent side yields the other side;
// two present totals sum their amounts and keep the token identity of o.
func (o OptionalTotal) Combine(other OptionalTotal) OptionalTotal {
	switch {
	case !o.present:
		return other
	case !other.present:
		return o
	}
	merged := o.total
	merged.TotalAmount = o.total.TotalAmount.Add(other.total.TotalAmount)
	return SomeTotal(merged)
}

// MarshalJSON encodes an absent total as null.
func (o OptionalTotal) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.total)
}

// UnmarshalJSON decodes null as an absent total.
func (o *OptionalTotal) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = NoTotal()
		return nil
	}
	var t TotalFund
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	*o = SomeTotal(t)
	return nil
}
