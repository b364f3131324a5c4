package watcher

import (
	"math/big"
	"time"

	"fundscope/internal/contracts"
	"fundscope/internal/funds"
)

func recordCommand(ev contracts.FundedEvent, requestID, eventID int64, timestamp time.Time) funds.RecordCommand {
	amount := ev.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return funds.RecordCommand{
		Amount:            amount,
		RequestID:         requestID,
		Token:             ev.Token,
		Timestamp:         timestamp,
		FunderAddress:     ev.From,
		BlockchainEventID: eventID,
		TransactionHash:   ev.TxHash,
	}
}
