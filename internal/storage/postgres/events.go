package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fundscope/internal/model"
	"fundscope/internal/storage"
)

type eventStore struct {
	db querier
}

func scanEvent(row pgx.Row) (model.BlockchainEvent, error) {
	var (
		e        model.BlockchainEvent
		logIndex int64
		block    int64
	)
	if err := row.Scan(&e.ID, &e.TransactionHash, &logIndex, &block); err != nil {
		return model.BlockchainEvent{}, err
	}
	e.LogIndex = uint64(logIndex)
	e.BlockNumber = uint64(block)
	return e, nil
}

func (s eventStore) Save(ctx context.Context, e model.BlockchainEvent) (model.BlockchainEvent, error) {
	hash := hashKey(e.TransactionHash)
	if hash == "" {
		return model.BlockchainEvent{}, storage.ErrInvalidInput
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO blockchain_events (transaction_hash, log_index, block_number)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_hash, log_index) DO NOTHING
		RETURNING id, transaction_hash, log_index, block_number
	`, hash, int64(e.LogIndex), int64(e.BlockNumber))
	saved, err := scanEvent(row)
	if err == nil {
		return saved, nil
	}
	if !isNotFoundError(err) {
		return model.BlockchainEvent{}, fmt.Errorf("insert blockchain event: %w", err)
	}

	existing, ok, err := s.FindByTransactionHashAndLogIndex(ctx, hash, e.LogIndex)
	if err != nil {
		return model.BlockchainEvent{}, err
	}
	if !ok {
		return model.BlockchainEvent{}, fmt.Errorf("blockchain event %s:%d vanished after conflict", hash, e.LogIndex)
	}
	return existing, nil
}

func (s eventStore) FindByTransactionHashAndLogIndex(ctx context.Context, txHash string, logIndex uint64) (model.BlockchainEvent, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, transaction_hash, log_index, block_number
		FROM blockchain_events
		WHERE transaction_hash = $1 AND log_index = $2
	`, hashKey(txHash), int64(logIndex))
	e, err := scanEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return model.BlockchainEvent{}, false, nil
		}
		return model.BlockchainEvent{}, false, fmt.Errorf("get blockchain event: %w", err)
	}
	return e, true, nil
}
