package funds

import (
	"context"
	"fmt"

	"fundscope/internal/model"
	"fundscope/internal/storage"
)

// Ledger exposes read access to recorded funds and registration of pending
// funds.
type Ledger struct {
	funds   storage.FundStore
	pending storage.PendingFundStore
}

func NewLedger(uow storage.UnitOfWork) *Ledger {
	return &Ledger{funds: uow.Funds(), pending: uow.PendingFunds()}
}

func (l *Ledger) FindAll(ctx context.Context) ([]model.Fund, error) {
	return l.funds.FindAll(ctx)
}

// FindByID returns storage.ErrNotFound when the fund does not exist.
func (l *Ledger) FindByID(ctx context.Context, id int64) (model.Fund, error) {
	return l.funds.FindByID(ctx, id)
}

func (l *Ledger) FindByRequestID(ctx context.Context, requestID int64) ([]model.Fund, error) {
	return l.funds.FindByRequestID(ctx, requestID)
}

// RegisterPending records which user sent a not yet confirmed transaction.
func (l *Ledger) RegisterPending(ctx context.Context, p model.PendingFund) (model.PendingFund, error) {
	if p.TransactionHash == "" || p.UserID == "" {
		return model.PendingFund{}, fmt.Errorf("%w: transaction hash and user id are required", storage.ErrInvalidInput)
	}
	return l.pending.Save(ctx, p)
}
