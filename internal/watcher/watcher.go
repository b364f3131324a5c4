// Package watcher follows FundRepository Funded logs and records them as funds.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"fundscope/internal/contracts"
	"fundscope/internal/funds"
	"fundscope/internal/metrics"
	"fundscope/internal/model"
	"fundscope/internal/storage"
)

const defaultPollInterval = 15 * time.Second

// Config holds runtime settings for the watcher. A zero ToBlock follows the
// chain head every PollInterval until the context is cancelled.
type Config struct {
	Contract          common.Address
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	PollInterval      time.Duration
}

// LogSource reads chain logs. Satisfied by *chain.Client.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// FundRecorder records an observed fund.
type FundRecorder interface {
	RecordFund(ctx context.Context, cmd funds.RecordCommand) (model.Fund, error)
}

// Watcher streams Funded logs into the fund ledger.
type Watcher struct {
	cfg        Config
	source     LogSource
	store      storage.UnitOfWork
	recorder   FundRecorder
	decoder    *contracts.FundedDecoder
	checkpoint *CheckpointStore
	retry      retryPolicy
	logger     *zap.Logger
	metrics    *metrics.Metrics

	next uint64
}

func New(cfg Config, source LogSource, store storage.UnitOfWork, recorder FundRecorder, logger *zap.Logger, m *metrics.Metrics) (*Watcher, error) {
	if source == nil || store == nil || recorder == nil {
		return nil, fmt.Errorf("log source, store and recorder are required")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, fmt.Errorf("fund repository address is required")
	}
	if cfg.ToBlock != 0 && cfg.ToBlock < cfg.FromBlock {
		return nil, fmt.Errorf("to block %d is before from block %d", cfg.ToBlock, cfg.FromBlock)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := contracts.NewFundedDecoder()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:        cfg,
		source:     source,
		store:      store,
		recorder:   recorder,
		decoder:    decoder,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled, cfg.Contract.Hex()),
		retry:      retryPolicy{maxRetries: cfg.MaxRetries, backoff: cfg.RetryBackoff, logger: logger},
		logger:     logger,
		metrics:    m,
		next:       cfg.FromBlock,
	}, nil
}

// Run syncs up to ToBlock, or follows the head when ToBlock is zero.
func (w *Watcher) Run(ctx context.Context) error {
	if cp, ok, err := w.checkpoint.Load(); err != nil {
		return err
	} else if ok && cp.LastProcessedBlock >= w.next {
		w.next = cp.LastProcessedBlock + 1
		w.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", w.next))
	}

	for {
		if err := w.SyncOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return err
		}
		if w.cfg.ToBlock != 0 {
			return nil
		}

		timer := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// SyncOnce processes every block from the next unprocessed one to the target.
func (w *Watcher) SyncOnce(ctx context.Context) error {
	to := w.cfg.ToBlock
	if to == 0 {
		err := w.retry.do(ctx, "latest block", func(ctx context.Context) error {
			var err error
			to, err = w.source.LatestBlockNumber(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
	}
	if w.next > to {
		w.logger.Debug("nothing to sync", zap.Uint64("from", w.next), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(w.next, to, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processRange(ctx, blockRange); err != nil {
			return err
		}
		if err := w.checkpoint.Save(blockRange.To); err != nil {
			return err
		}
		w.next = blockRange.To + 1
		w.metrics.SetLastBlock(blockRange.To)
	}
	return nil
}

func (w *Watcher) processRange(ctx context.Context, blockRange BlockRange) error {
	var logs []types.Log
	err := w.retry.do(ctx, "filter logs", func(ctx context.Context) error {
		var err error
		logs, err = w.source.FilterLogs(ctx, blockRange.From, blockRange.To,
			[]common.Address{w.cfg.Contract}, []common.Hash{w.decoder.Topic()})
		return err
	}, zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	recorded := 0
	for _, log := range logs {
		ok, err := w.handleLog(ctx, log)
		if err != nil {
			return err
		}
		if ok {
			recorded++
		}
	}
	w.logger.Info("batch complete",
		zap.Int("logs", len(logs)),
		zap.Int("recorded", recorded),
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
	)
	return nil
}

// handleLog records one Funded log. It reports whether a new fund was stored.
func (w *Watcher) handleLog(ctx context.Context, log types.Log) (bool, error) {
	if log.Removed {
		w.metrics.WatcherLog("removed")
		return false, nil
	}
	if !w.decoder.CanDecode(log) {
		w.metrics.WatcherLog("ignored")
		return false, nil
	}
	ev, err := w.decoder.Decode(log)
	if err != nil {
		w.logger.Warn("skipping undecodable funded log", zap.String("tx_hash", log.TxHash.Hex()), zap.Uint("log_index", log.Index), zap.Error(err))
		w.metrics.WatcherLog("invalid")
		return false, nil
	}

	req, ok, err := w.store.Requests().FindByIssue(ctx, model.Platform(ev.Platform), ev.PlatformID)
	if err != nil {
		return false, fmt.Errorf("find request %s/%s: %w", ev.Platform, ev.PlatformID, err)
	}
	if !ok {
		w.logger.Warn("funded log for unknown request",
			zap.String("platform", ev.Platform),
			zap.String("platform_id", ev.PlatformID),
			zap.String("tx_hash", ev.TxHash),
		)
		w.metrics.WatcherLog("unknown_request")
		return false, nil
	}

	event, err := w.store.BlockchainEvents().Save(ctx, model.BlockchainEvent{
		TransactionHash: ev.TxHash,
		LogIndex:        ev.LogIndex,
		BlockNumber:     ev.BlockNumber,
	})
	if err != nil {
		return false, fmt.Errorf("save blockchain event: %w", err)
	}
	if _, exists, err := w.store.Funds().FindByBlockchainEventID(ctx, event.ID); err != nil {
		return false, fmt.Errorf("find fund by event: %w", err)
	} else if exists {
		w.metrics.WatcherLog("duplicate")
		return false, nil
	}

	timestamp, err := w.blockTime(ctx, ev.BlockNumber)
	if err != nil {
		return false, err
	}

	_, err = w.recorder.RecordFund(ctx, recordCommand(ev, req.ID, event.ID, timestamp))
	if errors.Is(err, storage.ErrDuplicateKey) {
		w.metrics.WatcherLog("duplicate")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record fund for tx %s: %w", ev.TxHash, err)
	}
	w.metrics.WatcherLog("recorded")
	return true, nil
}

func (w *Watcher) blockTime(ctx context.Context, block uint64) (time.Time, error) {
	var ts uint64
	err := w.retry.do(ctx, "block timestamp", func(ctx context.Context) error {
		var err error
		ts, err = w.source.BlockTimestamp(ctx, block)
		return err
	}, zap.Uint64("block_number", block))
	if err != nil {
		return time.Time{}, fmt.Errorf("block timestamp %d: %w", block, err)
	}
	return time.Unix(int64(ts), 0).UTC(), nil
}
