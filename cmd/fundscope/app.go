package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fundscope/internal/cache"
	"fundscope/internal/chain"
	"fundscope/internal/config"
	"fundscope/internal/contracts"
	"fundscope/internal/events"
	"fundscope/internal/funds"
	"fundscope/internal/metrics"
	"fundscope/internal/price"
	"fundscope/internal/profile"
	"fundscope/internal/storage"
	"fundscope/internal/storage/memory"
	"fundscope/internal/storage/postgres"
	"fundscope/internal/token"
)

// app holds the wired services for one command invocation.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	store    storage.Store
	pg       *postgres.Store
	chain    *chain.Client
	registry token.Registry
	bus      *events.Bus

	totals   *funds.TotalsService
	funders  *funds.FundersService
	recorder *funds.Recorder
	ledger   *funds.Ledger

	closers []func() error
}

type appOptions struct {
	needChain    bool
	needPostgres bool
}

// newApp loads configuration from cmd and wires every service the options
// allow. The returned context is cancelled on SIGINT or SIGTERM.
func newApp(cmd *cobra.Command, opts appOptions) (context.Context, *app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger, syncLogger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	a := &app{cfg: cfg, logger: logger, metrics: metrics.Default()}
	a.closers = append(a.closers, syncLogger, func() error { stop(); return nil })

	if err := a.wire(ctx, opts); err != nil {
		return nil, nil, multierr.Append(err, a.Close())
	}
	return ctx, a, nil
}

func (a *app) wire(ctx context.Context, opts appOptions) error {
	if err := a.openStore(ctx, opts.needPostgres); err != nil {
		return err
	}

	static := token.NewStaticRegistry()
	for _, spec := range a.cfg.Tokens {
		info, err := token.ParseTokenSpec(spec)
		if err != nil {
			return err
		}
		static.Add(info)
	}
	a.registry = static

	hasChain := a.cfg.RPCURL != ""
	if opts.needChain && !hasChain {
		return fmt.Errorf("rpc is required")
	}
	if hasChain {
		if err := a.openChain(ctx, static); err != nil {
			return err
		}
	}

	a.bus = events.NewBus(a.logger.Named("events"),
		events.WithWorkers(a.cfg.NotifyWorkers),
		events.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, func() error { a.bus.Close(); return nil })

	var profiles funds.ProfileResolver
	if a.cfg.ProfileURL != "" {
		profiles = profile.NewClient(a.cfg.ProfileURL, a.cfg.HTTPTimeout)
	}
	var prices funds.PriceService
	if a.cfg.PriceURL != "" {
		prices = price.NewClient(a.cfg.PriceURL, a.cfg.HTTPTimeout)
	}

	merger := funds.NewMerger(a.registry, profiles, a.cfg.PlatformTokenSymbol, a.logger.Named("merge"))
	a.funders = funds.NewFundersService(a.store.Funds(), merger, profiles, prices, a.logger.Named("funders"))
	a.ledger = funds.NewLedger(a.store)

	var evicter funds.Evicter
	if a.totals != nil {
		evicter = a.totals
	}
	a.recorder = funds.NewRecorder(a.store, evicter, a.bus, a.logger.Named("recorder"), a.metrics)
	return nil
}

func (a *app) openStore(ctx context.Context, required bool) error {
	if a.cfg.PGDSN == "" {
		if required {
			return fmt.Errorf("pg-dsn is required")
		}
		a.logger.Warn("pg-dsn not set, using in-memory store")
		a.store = memory.NewStore()
		return nil
	}
	pg, err := postgres.NewStore(ctx, a.cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.pg = pg
	a.store = pg
	a.closers = append(a.closers, func() error { pg.Close(); return nil })
	return nil
}

func (a *app) openChain(ctx context.Context, static *token.StaticRegistry) error {
	if err := a.cfg.RequireChain(); err != nil {
		return err
	}
	fundAddr, _ := config.ParseAddress("fund-repository", a.cfg.FundRepository)
	claimAddr, _ := config.ParseAddress("claim-repository", a.cfg.ClaimRepository)

	client, err := chain.NewClient(ctx, a.cfg.RPCURL, a.cfg.CallTimeout)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.chain = client
	a.closers = append(a.closers, func() error { client.Close(); return nil })

	chainRegistry, err := token.NewChainRegistry(client, a.cfg.TokenCacheSize, a.logger.Named("tokens"))
	if err != nil {
		return err
	}
	a.registry = token.ChainedRegistry{static, chainRegistry}

	fundRepo, err := contracts.NewFundRepository(client, fundAddr)
	if err != nil {
		return err
	}
	claimRepo, err := contracts.NewClaimRepository(client, claimAddr)
	if err != nil {
		return err
	}

	cacheOpts := []cache.Option{cache.WithTTL(a.cfg.TotalsCacheTTL)}
	if a.cfg.TotalsCacheShards > 0 {
		cacheOpts = append(cacheOpts, cache.WithShards(a.cfg.TotalsCacheShards))
	}
	a.totals, err = funds.NewTotalsService(funds.TotalsConfig{
		Requests: a.store.Requests(),
		Claims:   claimRepo,
		Funds:    fundRepo,
		Registry: a.registry,
		Cache:    cache.New[funds.TotalsResult](cacheOpts...),
		Logger:   a.logger.Named("totals"),
		Metrics:  a.metrics,
	})
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var err error
	for _, closer := range lo.Reverse(a.closers) {
		err = multierr.Append(err, closer())
	}
	a.closers = nil
	return err
}
