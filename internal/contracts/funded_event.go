package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FundedEvent is a decoded FundRepository Funded log.
type FundedEvent struct {
	From        string
	Platform    string
	PlatformID  string
	Token       string
	Amount      *big.Int
	TxHash      string
	LogIndex    uint64
	BlockNumber uint64
}

// FundedDecoder decodes Funded logs.
type FundedDecoder struct {
	event abi.Event
}

// NewFundedDecoder builds a decoder from the FundRepository ABI.
func NewFundedDecoder() (*FundedDecoder, error) {
	parsed, err := FundRepositoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse fund repository abi: %w", err)
	}
	event, ok := parsed.Events["Funded"]
	if !ok {
		return nil, fmt.Errorf("fund repository abi has no Funded event")
	}
	return &FundedDecoder{event: event}, nil
}

// Topic returns the topic0 of the Funded event.
func (d *FundedDecoder) Topic() common.Hash {
	return d.event.ID
}

// CanDecode checks the log's topic0.
func (d *FundedDecoder) CanDecode(log types.Log) bool {
	return len(log.Topics) > 0 && log.Topics[0] == d.event.ID
}

// Decode converts a raw log into a FundedEvent.
func (d *FundedDecoder) Decode(log types.Log) (FundedEvent, error) {
	if !d.CanDecode(log) {
		return FundedEvent{}, fmt.Errorf("not a Funded log")
	}
	if len(log.Topics) < 2 {
		return FundedEvent{}, fmt.Errorf("funded log missing from topic")
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return FundedEvent{}, fmt.Errorf("unpack funded: %w", err)
	}
	if len(values) != 4 {
		return FundedEvent{}, fmt.Errorf("funded field count %d", len(values))
	}

	platform, ok := values[0].([32]byte)
	if !ok {
		return FundedEvent{}, fmt.Errorf("platform unexpected type %T", values[0])
	}
	platformID, ok := values[1].(string)
	if !ok {
		return FundedEvent{}, fmt.Errorf("platformId unexpected type %T", values[1])
	}
	token, err := asAddress(values[2])
	if err != nil {
		return FundedEvent{}, fmt.Errorf("token: %w", err)
	}
	amount, err := asBigInt(values[3])
	if err != nil {
		return FundedEvent{}, fmt.Errorf("amount: %w", err)
	}

	return FundedEvent{
		From:        common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		Platform:    DecodePlatform(platform),
		PlatformID:  platformID,
		Token:       token.Hex(),
		Amount:      amount,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		BlockNumber: log.BlockNumber,
	}, nil
}
