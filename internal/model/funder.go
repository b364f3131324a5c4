package model

import "github.com/shopspring/decimal"

// Funder aggregates the contributions of one user or address to a request.
type Funder struct {
	Funder             string        `json:"funder"`
	FunderAddress      string        `json:"funder_address"`
	PlatformTokenTotal OptionalTotal `json:"fnd_funds"`
	OtherTokenTotal    OptionalTotal `json:"other_funds"`
	IsCurrentUser      bool          `json:"is_logged_in_user"`
}

// Funders is the funders view of a request.
type Funders struct {
	Funders            []Funder            `json:"funders"`
	PlatformTokenTotal OptionalTotal       `json:"fnd_funds"`
	OtherTokenTotal    OptionalTotal       `json:"other_funds"`
	USDValue           decimal.NullDecimal `json:"usd_funds"`
}
