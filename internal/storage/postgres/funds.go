package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fundscope/internal/model"
	"fundscope/internal/storage"
)

type fundStore struct {
	db querier
}

const fundColumns = `id, request_id, amount_in_wei::text, token, funder_address, funder_user_id, timestamp, blockchain_event_id`

func scanFund(row pgx.Row) (model.Fund, error) {
	var (
		f       model.Fund
		amount  *string
		userID  *string
		eventID *int64
	)
	if err := row.Scan(&f.ID, &f.RequestID, &amount, &f.Token, &f.FunderAddress, &userID, &f.Timestamp, &eventID); err != nil {
		return model.Fund{}, err
	}
	value, err := parseAmount(amount)
	if err != nil {
		return model.Fund{}, err
	}
	f.AmountInWei = value
	if userID != nil {
		f.FunderUserID = *userID
	}
	if eventID != nil {
		f.BlockchainEventID = *eventID
	}
	return f, nil
}

func (s fundStore) Save(ctx context.Context, f model.Fund) (model.Fund, error) {
	if f.RequestID == 0 || f.AmountInWei == nil || f.AmountInWei.Sign() < 0 || f.Token == "" {
		return model.Fund{}, storage.ErrInvalidInput
	}
	var ts any
	if !f.Timestamp.IsZero() {
		ts = f.Timestamp
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO funds (request_id, amount_in_wei, token, funder_address, funder_user_id, timestamp, blockchain_event_id)
		VALUES ($1, $2::numeric, $3, $4, $5, COALESCE($6, now()), $7)
		RETURNING `+fundColumns,
		f.RequestID,
		amountText(f.AmountInWei),
		f.Token,
		f.FunderAddress,
		nullString(f.FunderUserID),
		ts,
		nullInt(f.BlockchainEventID),
	)
	saved, err := scanFund(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return model.Fund{}, storage.ErrDuplicateKey
		}
		return model.Fund{}, fmt.Errorf("insert fund: %w", err)
	}
	return saved, nil
}

func (s fundStore) FindByID(ctx context.Context, id int64) (model.Fund, error) {
	row := s.db.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds WHERE id = $1`, id)
	f, err := scanFund(row)
	if err != nil {
		if isNotFoundError(err) {
			return model.Fund{}, storage.ErrNotFound
		}
		return model.Fund{}, fmt.Errorf("get fund by id: %w", err)
	}
	return f, nil
}

func (s fundStore) FindAll(ctx context.Context) ([]model.Fund, error) {
	return s.list(ctx, `SELECT `+fundColumns+` FROM funds ORDER BY id`)
}

func (s fundStore) FindByRequestID(ctx context.Context, requestID int64) ([]model.Fund, error) {
	return s.list(ctx, `SELECT `+fundColumns+` FROM funds WHERE request_id = $1 ORDER BY id`, requestID)
}

func (s fundStore) FindByBlockchainEventID(ctx context.Context, eventID int64) (model.Fund, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds WHERE blockchain_event_id = $1`, eventID)
	f, err := scanFund(row)
	if err != nil {
		if isNotFoundError(err) {
			return model.Fund{}, false, nil
		}
		return model.Fund{}, false, fmt.Errorf("get fund by event: %w", err)
	}
	return f, true, nil
}

func (s fundStore) list(ctx context.Context, query string, args ...any) ([]model.Fund, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query funds: %w", err)
	}
	defer rows.Close()

	out := make([]model.Fund, 0)
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fund: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate funds: %w", err)
	}
	return out, nil
}
