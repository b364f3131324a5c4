package model

// UserProfile is the subset of a platform profile used for funder display.
type UserProfile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EtherAddress string `json:"etherAddress"`
}
