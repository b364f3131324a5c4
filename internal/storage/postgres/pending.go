package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fundscope/internal/model"
	"fundscope/internal/storage"
)

type pendingFundStore struct {
	db querier
}

const pendingColumns = `id, transaction_hash, user_id, from_address, token, amount_in_wei::text, request_id, created_at`

func scanPending(row pgx.Row) (model.PendingFund, error) {
	var (
		p         model.PendingFund
		amount    *string
		requestID *int64
	)
	if err := row.Scan(&p.ID, &p.TransactionHash, &p.UserID, &p.FromAddress, &p.Token, &amount, &requestID, &p.CreatedAt); err != nil {
		return model.PendingFund{}, err
	}
	value, err := parseAmount(amount)
	if err != nil {
		return model.PendingFund{}, err
	}
	p.AmountInWei = value
	if requestID != nil {
		p.RequestID = *requestID
	}
	return p, nil
}

func (s pendingFundStore) Save(ctx context.Context, p model.PendingFund) (model.PendingFund, error) {
	if hashKey(p.TransactionHash) == "" || p.UserID == "" {
		return model.PendingFund{}, storage.ErrInvalidInput
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO pending_funds (transaction_hash, user_id, from_address, token, amount_in_wei, request_id)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING `+pendingColumns,
		hashKey(p.TransactionHash),
		p.UserID,
		p.FromAddress,
		p.Token,
		amountText(p.AmountInWei),
		nullInt(p.RequestID),
	)
	saved, err := scanPending(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return model.PendingFund{}, storage.ErrDuplicateKey
		}
		return model.PendingFund{}, fmt.Errorf("insert pending fund: %w", err)
	}
	return saved, nil
}

func (s pendingFundStore) FindByTransactionHash(ctx context.Context, txHash string) (model.PendingFund, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_funds WHERE transaction_hash = $1`, hashKey(txHash))
	p, err := scanPending(row)
	if err != nil {
		if isNotFoundError(err) {
			return model.PendingFund{}, false, nil
		}
		return model.PendingFund{}, false, fmt.Errorf("get pending fund: %w", err)
	}
	return p, true, nil
}
