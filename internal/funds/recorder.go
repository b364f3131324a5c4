package funds

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"fundscope/internal/metrics"
	"fundscope/internal/model"
	"fundscope/internal/storage"
)

// Evicter drops cached totals for a request.
type Evicter interface {
	Evict(requestID int64)
}

// Publisher delivers committed fund notifications. Publish must not block on
// subscriber work.
type Publisher interface {
	Publish(ctx context.Context, event model.RequestFunded)
}

// RecordCommand describes an observed fund transfer.
type RecordCommand struct {
	Amount            *big.Int
	RequestID         int64
	Token             string
	Timestamp         time.Time
	FunderAddress     string
	BlockchainEventID int64
	TransactionHash   string
}

// Recorder persists funds, invalidates cached totals and announces new funds.
type Recorder struct {
	tx        storage.TxManager
	cache     Evicter
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewRecorder(tx storage.TxManager, cache Evicter, publisher Publisher, logger *zap.Logger, m *metrics.Metrics) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		tx:        tx,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

func (c RecordCommand) validate() error {
	switch {
	case c.RequestID <= 0:
		return fmt.Errorf("%w: request id is required", storage.ErrInvalidInput)
	case c.Amount == nil || c.Amount.Sign() < 0:
		return fmt.Errorf("%w: amount must be non-negative", storage.ErrInvalidInput)
	case c.Token == "":
		return fmt.Errorf("%w: token is required", storage.ErrInvalidInput)
	}
	return nil
}

// RecordFund stores a fund for the command. A pending fund with the same
// transaction hash attributes the fund to its user. The cache entry of the
// request is evicted before commit and the notification is published only
// after commit.
func (r *Recorder) RecordFund(ctx context.Context, cmd RecordCommand) (model.Fund, error) {
	if err := cmd.validate(); err != nil {
		return model.Fund{}, err
	}

	var saved model.Fund
	err := r.tx.WithinTx(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		fund := model.Fund{
			RequestID:         cmd.RequestID,
			AmountInWei:       new(big.Int).Set(cmd.Amount),
			Token:             cmd.Token,
			FunderAddress:     cmd.FunderAddress,
			Timestamp:         cmd.Timestamp,
			BlockchainEventID: cmd.BlockchainEventID,
		}
		if cmd.TransactionHash != "" {
			pending, ok, err := uow.PendingFunds().FindByTransactionHash(ctx, cmd.TransactionHash)
			if err != nil {
				return fmt.Errorf("find pending fund: %w", err)
			}
			if ok && pending.UserID != "" {
				fund.FunderUserID = pending.UserID
			}
		}

		var err error
		saved, err = uow.Funds().Save(ctx, fund)
		if err != nil {
			return fmt.Errorf("save fund: %w", err)
		}
		if r.cache != nil {
			r.cache.Evict(cmd.RequestID)
		}
		return nil
	})
	if err != nil {
		return model.Fund{}, err
	}

	r.metrics.FundRecorded()
	r.logger.Info("fund recorded",
		zap.Int64("fund_id", saved.ID),
		zap.Int64("request_id", saved.RequestID),
		zap.String("token", saved.Token),
		zap.String("amount", saved.AmountInWei.String()),
		zap.Bool("attributed", saved.HasFunderUser()),
	)

	if r.publisher != nil {
		r.publisher.Publish(ctx, model.RequestFunded{
			Fund:      saved,
			RequestID: saved.RequestID,
			Timestamp: r.eventTime(cmd),
		})
	}
	return saved, nil
}

func (r *Recorder) eventTime(cmd RecordCommand) time.Time {
	if !cmd.Timestamp.IsZero() {
		return cmd.Timestamp
	}
	return r.now().UTC()
}
