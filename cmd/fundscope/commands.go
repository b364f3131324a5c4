package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fundscope/internal/config"
	"fundscope/internal/funds"
	"fundscope/internal/model"
	"fundscope/internal/storage/migrations"
	"fundscope/internal/token"
	"fundscope/internal/watcher"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseRequestID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid request id %q", arg)
	}
	return id, nil
}

// parseAmount reads an amount in smallest units, or in token units when
// decimals is not negative.
func parseAmount(input string, decimals int) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if decimals < 0 {
		amount, ok := new(big.Int).SetString(input, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q: want an integer in the smallest unit", input)
		}
		return amount, nil
	}
	if decimals > math.MaxUint8 {
		return nil, fmt.Errorf("invalid decimals %d", decimals)
	}
	value, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	raw := token.ToSmallestUnit(value, uint8(decimals))
	if !token.Normalize(raw, uint8(decimals)).Equal(value) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", input, decimals)
	}
	return raw, nil
}

// recordOutput is a recorded fund with its amount in token units when the
// token decimals were given.
type recordOutput struct {
	model.Fund
	Amount string `json:"amount,omitempty"`
}

type totalsOutput struct {
	RequestID int64             `json:"request_id"`
	Outcome   funds.Outcome     `json:"outcome"`
	Source    funds.Source      `json:"source,omitempty"`
	Totals    []model.TotalFund `json:"totals"`
	Error     string            `json:"error,omitempty"`
}

func newTotalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "totals <request-id>",
		Short: "Print the per-token totals of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			requestID, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			ctx, a, err := newApp(cmd, appOptions{needChain: true})
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			res := a.totals.Result(ctx, requestID)
			out := totalsOutput{
				RequestID: requestID,
				Outcome:   res.Outcome,
				Source:    res.Source,
				Totals:    res.Totals,
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Duration("totals-cache-ttl", 0, "totals cache entry lifetime, 0 keeps entries until evicted")
	cmd.Flags().Int("totals-cache-shards", 32, "totals cache shard count")
	return cmd
}

func newFundersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "funders <request-id>",
		Short: "Print the funders of a request grouped by user or address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			requestID, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			userID, _ := cmd.Flags().GetString("user")
			wallet, _ := cmd.Flags().GetString("wallet")

			ctx, a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			view, err := a.funders.FundedBy(ctx, funds.Caller{UserID: userID, WalletAddress: wallet}, requestID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().String("user", "", "id of the calling user")
	cmd.Flags().String("wallet", "", "wallet address of the calling user")
	return cmd
}

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an observed fund transfer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			flags := cmd.Flags()
			requestID, _ := flags.GetInt64("request-id")
			amountText, _ := flags.GetString("amount")
			tokenAddr, _ := flags.GetString("token")
			funder, _ := flags.GetString("funder")
			txHash, _ := flags.GetString("tx-hash")
			eventID, _ := flags.GetInt64("event-id")
			tsText, _ := flags.GetString("timestamp")
			decimals, _ := flags.GetInt("decimals")

			amount, err := parseAmount(amountText, decimals)
			if err != nil {
				return err
			}
			var ts time.Time
			if tsText != "" {
				ts, err = time.Parse(time.RFC3339, tsText)
				if err != nil {
					return fmt.Errorf("invalid timestamp: %w", err)
				}
			}

			ctx, a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			fund, err := a.recorder.RecordFund(ctx, funds.RecordCommand{
				Amount:            amount,
				RequestID:         requestID,
				Token:             tokenAddr,
				Timestamp:         ts,
				FunderAddress:     funder,
				BlockchainEventID: eventID,
				TransactionHash:   txHash,
			})
			if err != nil {
				return err
			}
			out := recordOutput{Fund: fund}
			if decimals >= 0 {
				out.Amount = token.Format(fund.AmountInWei, uint8(decimals))
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Int64("request-id", 0, "request receiving the fund")
	cmd.Flags().String("amount", "", "amount in the token's smallest unit, or in token units with --decimals")
	cmd.Flags().Int("decimals", -1, "token decimals for --amount given in token units")
	cmd.Flags().String("token", "", "token contract address")
	cmd.Flags().String("funder", "", "funder wallet address")
	cmd.Flags().String("tx-hash", "", "transaction hash, used to attribute pending funds")
	cmd.Flags().Int64("event-id", 0, "blockchain event id")
	cmd.Flags().String("timestamp", "", "fund time (RFC3339), defaults to now")
	cmd.Flags().Int("notify-workers", 4, "concurrent notification deliveries")
	return cmd
}

func newPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Register a pending fund for a not yet confirmed transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			flags := cmd.Flags()
			txHash, _ := flags.GetString("tx-hash")
			userID, _ := flags.GetString("user-id")
			from, _ := flags.GetString("from")
			tokenAddr, _ := flags.GetString("token")
			amountText, _ := flags.GetString("amount")
			requestID, _ := flags.GetInt64("request-id")
			decimals, _ := flags.GetInt("decimals")

			pending := model.PendingFund{
				TransactionHash: txHash,
				UserID:          userID,
				FromAddress:     from,
				Token:           tokenAddr,
				RequestID:       requestID,
			}
			if amountText != "" {
				if pending.AmountInWei, err = parseAmount(amountText, decimals); err != nil {
					return err
				}
			}

			ctx, a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			saved, err := a.ledger.RegisterPending(ctx, pending)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), saved)
		},
	}
	cmd.Flags().String("tx-hash", "", "transaction hash")
	cmd.Flags().String("user-id", "", "user who sent the transaction")
	cmd.Flags().String("from", "", "sender address")
	cmd.Flags().String("token", "", "token contract address")
	cmd.Flags().String("amount", "", "amount in the token's smallest unit, or in token units with --decimals")
	cmd.Flags().Int("decimals", -1, "token decimals for --amount given in token units")
	cmd.Flags().Int64("request-id", 0, "request being funded")
	return cmd
}

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Create or update a fundable request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			flags := cmd.Flags()
			id, _ := flags.GetInt64("id")
			platform, _ := flags.GetString("platform")
			platformID, _ := flags.GetString("platform-id")
			status, _ := flags.GetString("status")
			link, _ := flags.GetString("link")
			title, _ := flags.GetString("title")

			if strings.TrimSpace(platformID) == "" {
				return fmt.Errorf("platform-id is required")
			}

			ctx, a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			saved, err := a.store.Requests().Save(ctx, model.Request{
				ID:     id,
				Status: model.RequestStatus(strings.ToUpper(status)),
				IssueInformation: model.IssueInformation{
					Platform:   model.Platform(strings.ToUpper(platform)),
					PlatformID: platformID,
					Link:       link,
					Title:      title,
				},
			})
			if err != nil {
				return err
			}
			if a.totals != nil {
				a.totals.Evict(saved.ID)
			}
			return writeJSON(cmd.OutOrStdout(), saved)
		},
	}
	cmd.Flags().Int64("id", 0, "request id, 0 assigns a new one")
	cmd.Flags().String("platform", string(model.PlatformGithub), "issue platform")
	cmd.Flags().String("platform-id", "", "issue id on the platform")
	cmd.Flags().String("status", string(model.RequestStatusOpen), "request status")
	cmd.Flags().String("link", "", "issue link")
	cmd.Flags().String("title", "", "issue title")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow Funded logs and record them as funds",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	flags := cmd.Flags()
	flags.Uint64("from", 0, "start block (inclusive)")
	flags.Uint64("to", 0, "end block (inclusive), 0 follows the chain head")
	flags.Uint64("batch-size", 2000, "blocks per batch")
	flags.String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	flags.Bool("checkpoint-enabled", true, "enable checkpointing")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Duration("poll-interval", 15*time.Second, "head polling interval when following")
	flags.Int("notify-workers", 4, "concurrent notification deliveries")
	flags.Duration("totals-cache-ttl", 0, "totals cache entry lifetime, 0 keeps entries until evicted")
	flags.Int("totals-cache-shards", 32, "totals cache shard count")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) (err error) {
	ctx, a, err := newApp(cmd, appOptions{needChain: true})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	contract, err := config.ParseAddress("fund-repository", a.cfg.FundRepository)
	if err != nil {
		return err
	}

	w, err := watcher.New(watcher.Config{
		Contract:          contract,
		FromBlock:         a.cfg.Watch.FromBlock,
		ToBlock:           a.cfg.Watch.ToBlock,
		BatchSize:         a.cfg.Watch.BatchSize,
		CheckpointPath:    a.cfg.Watch.Checkpoint,
		CheckpointEnabled: a.cfg.Watch.CheckpointEnabled,
		MaxRetries:        a.cfg.Watch.MaxRetries,
		RetryBackoff:      a.cfg.Watch.RetryBackoff,
		PollInterval:      a.cfg.Watch.PollInterval,
	}, a.chain, a.store, a.recorder, a.logger.Named("watcher"), a.metrics)
	if err != nil {
		return err
	}

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		a.closers = append(a.closers, srv.Close)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	a.closers = append(a.closers, func() error { signal.Stop(hup); return nil })
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.totals.Clear()
				a.logger.Info("totals cache cleared")
			}
		}
	}()

	a.logger.Info("watcher start",
		zap.String("contract", contract.Hex()),
		zap.Uint64("from", a.cfg.Watch.FromBlock),
		zap.Uint64("to", a.cfg.Watch.ToBlock),
		zap.Uint64("batch_size", a.cfg.Watch.BatchSize),
		zap.Bool("checkpoint_enabled", a.cfg.Watch.CheckpointEnabled),
		zap.String("metrics_addr", a.cfg.MetricsAddr),
	)
	if err := w.Run(ctx); err != nil {
		return err
	}
	a.logger.Info("watcher stopped")
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, a, err := newApp(cmd, appOptions{needPostgres: true})
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			files, err := migrations.Files()
			if err != nil {
				return err
			}
			if err := a.pg.Migrate(ctx); err != nil {
				return err
			}
			a.logger.Info("migrations applied", zap.Strings("files", files))
			return nil
		},
	}
}
