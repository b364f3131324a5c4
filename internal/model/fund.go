package model

import (
	"math/big"
	"time"
)

// Fund is one recorded contribution to a request. Funds are never mutated.
type Fund struct {
	ID                int64     `json:"id"`
	RequestID         int64     `json:"request_id"`
	AmountInWei       *big.Int  `json:"amount_in_wei"`
	Token             string    `json:"token"`
	FunderAddress     string    `json:"funder_address"`
	FunderUserID      string    `json:"funder_user_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	BlockchainEventID int64     `json:"blockchain_event_id,omitempty"`
}

// HasFunderUser reports whether the fund is attributed to a known user.
func (f Fund) HasFunderUser() bool {
	return f.FunderUserID != ""
}

// PendingFund links a not yet confirmed transaction to the user who sent it.
type PendingFund struct {
	ID              int64     `json:"id"`
	TransactionHash string    `json:"transaction_hash"`
	UserID          string    `json:"user_id"`
	FromAddress     string    `json:"from_address,omitempty"`
	Token           string    `json:"token,omitempty"`
	AmountInWei     *big.Int  `json:"amount_in_wei,omitempty"`
	RequestID       int64     `json:"request_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// BlockchainEvent references the log that produced a fund.
type BlockchainEvent struct {
	ID              int64  `json:"id"`
	TransactionHash string `json:"transaction_hash"`
	LogIndex        uint64 `json:"log_index"`
	BlockNumber     uint64 `json:"block_number"`
}

// RequestFunded is emitted after a fund has been committed.
type RequestFunded struct {
	Fund      Fund      `json:"fund"`
	RequestID int64     `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
