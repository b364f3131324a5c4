package storage

import (
	"context"

	"fundscope/internal/model"
)

// RequestStore provides access to fundable requests.
type RequestStore interface {
	// FindByID returns false when the request does not exist.
	FindByID(ctx context.Context, id int64) (model.Request, bool, error)

	// FindByIssue looks a request up by its on-chain key.
	FindByIssue(ctx context.Context, platform model.Platform, platformID string) (model.Request, bool, error)

	// Save inserts or updates a request and returns it with its ID.
	Save(ctx context.Context, r model.Request) (model.Request, error)
}

// FundStore provides access to the append-only fund ledger.
type FundStore interface {
	// Save appends a fund and returns it with its ID.
	Save(ctx context.Context, f model.Fund) (model.Fund, error)

	// FindByID returns ErrNotFound when the fund does not exist.
	FindByID(ctx context.Context, id int64) (model.Fund, error)

	// FindAll returns every fund ordered by ID.
	FindAll(ctx context.Context) ([]model.Fund, error)

	// FindByRequestID returns the funds of a request ordered by ID.
	FindByRequestID(ctx context.Context, requestID int64) ([]model.Fund, error)

	// FindByBlockchainEventID returns false when no fund references the event.
	FindByBlockchainEventID(ctx context.Context, eventID int64) (model.Fund, bool, error)
}

// PendingFundStore provides access to unconfirmed fund attributions.
type PendingFundStore interface {
	// Save stores a pending fund. Returns ErrDuplicateKey if the tx hash exists.
	Save(ctx context.Context, p model.PendingFund) (model.PendingFund, error)

	// FindByTransactionHash returns false when no pending fund matches.
	FindByTransactionHash(ctx context.Context, txHash string) (model.PendingFund, bool, error)
}

// BlockchainEventStore records processed chain logs.
type BlockchainEventStore interface {
	// Save returns the existing event when (tx hash, log index) was seen before.
	Save(ctx context.Context, e model.BlockchainEvent) (model.BlockchainEvent, error)

	FindByTransactionHashAndLogIndex(ctx context.Context, txHash string, logIndex uint64) (model.BlockchainEvent, bool, error)
}

// UnitOfWork exposes the stores bound to one transaction.
type UnitOfWork interface {
	Requests() RequestStore
	Funds() FundStore
	PendingFunds() PendingFundStore
	BlockchainEvents() BlockchainEventStore
}

// TxManager runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// Store is a full storage backend.
type Store interface {
	UnitOfWork
	TxManager
}
