package funds

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"fundscope/internal/cache"
	"fundscope/internal/contracts"
	"fundscope/internal/metrics"
	"fundscope/internal/model"
	"fundscope/internal/token"
)

// Source names the on-chain state a totals computation read from.
type Source string

const (
	SourceNone  Source = ""
	SourceClaim Source = "claim"
	SourceFund  Source = "fund"
)

// Outcome classifies a totals computation.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeNotFound Outcome = "not_found"
	OutcomeDegraded Outcome = "degraded"
)

// TotalsResult is the full result of a totals computation. Totals is never nil;
// it is empty for NotFound and Degraded outcomes.
type TotalsResult struct {
	Totals  []model.TotalFund
	Outcome Outcome
	Source  Source
	Err     error
}

// RequestFinder looks requests up by id.
type RequestFinder interface {
	FindByID(ctx context.Context, id int64) (model.Request, bool, error)
}

// TotalsConfig wires a TotalsService.
type TotalsConfig struct {
	Requests RequestFinder
	// Claims is read for CLAIMED requests, Funds for every other status.
	Claims   contracts.StateReader
	Funds    contracts.StateReader
	Registry token.Registry
	Cache    *cache.Cache[TotalsResult]
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// TotalsService computes per-token totals for a request and memoizes them.
type TotalsService struct {
	requests RequestFinder
	claims   contracts.StateReader
	funds    contracts.StateReader
	registry token.Registry
	cache    *cache.Cache[TotalsResult]
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewTotalsService(cfg TotalsConfig) (*TotalsService, error) {
	if cfg.Requests == nil {
		return nil, fmt.Errorf("request finder is required")
	}
	if cfg.Claims == nil || cfg.Funds == nil {
		return nil, fmt.Errorf("claim and fund state readers are required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("token registry is required")
	}
	c := cfg.Cache
	if c == nil {
		c = cache.New[TotalsResult]()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TotalsService{
		requests: cfg.Requests,
		claims:   cfg.Claims,
		funds:    cfg.Funds,
		registry: cfg.Registry,
		cache:    c,
		logger:   logger,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}, nil
}

// TotalFundsForRequest returns the cached totals for a request, computing them
// on a miss. Failures degrade to an empty slice.
func (s *TotalsService) TotalFundsForRequest(ctx context.Context, requestID int64) []model.TotalFund {
	return s.Result(ctx, requestID).Totals
}

// Result is TotalFundsForRequest with the outcome attached. Only OK results
// are cached. The fill is shared by concurrent callers, so it runs detached
// from the caller's cancellation; chain reads stay bounded by their call
// timeout.
func (s *TotalsService) Result(ctx context.Context, requestID int64) TotalsResult {
	fillCtx := context.WithoutCancel(ctx)
	res, hit := s.cache.GetOrCompute(requestID, func() (TotalsResult, bool) {
		r := s.Compute(fillCtx, requestID)
		return r, r.Outcome == OutcomeOK
	})
	if hit {
		s.metrics.CacheHit()
	} else {
		s.metrics.CacheMiss()
		s.metrics.SetCacheEntries(s.cache.Len())
	}
	return res
}

// Evict drops the cached totals for a request.
func (s *TotalsService) Evict(requestID int64) {
	s.cache.Evict(requestID)
	s.metrics.CacheEvict()
	s.metrics.SetCacheEntries(s.cache.Len())
}

// Clear drops every cached total.
func (s *TotalsService) Clear() {
	s.cache.Purge()
	s.metrics.SetCacheEntries(0)
}

// Compute reads totals for a request without the cache.
func (s *TotalsService) Compute(ctx context.Context, requestID int64) TotalsResult {
	start := s.now()
	res := s.compute(ctx, requestID)
	s.metrics.ObserveTotals(string(res.Source), string(res.Outcome), s.now().Sub(start))
	if res.Outcome == OutcomeDegraded {
		s.logger.Warn("totals degraded to empty",
			zap.Int64("request_id", requestID),
			zap.String("source", string(res.Source)),
			zap.Error(res.Err),
		)
	}
	return res
}

func (s *TotalsService) compute(ctx context.Context, requestID int64) TotalsResult {
	req, ok, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return degraded(SourceNone, fmt.Errorf("find request %d: %w", requestID, err))
	}
	if !ok {
		return TotalsResult{Totals: []model.TotalFund{}, Outcome: OutcomeNotFound}
	}

	source, reader := SourceFund, s.funds
	if req.IsClaimed() {
		source, reader = SourceClaim, s.claims
	}

	totals, err := s.readTotals(ctx, reader, req.IssueInformation)
	if err != nil {
		return degraded(source, err)
	}
	return TotalsResult{Totals: totals, Outcome: OutcomeOK, Source: source}
}

func degraded(source Source, err error) TotalsResult {
	return TotalsResult{Totals: []model.TotalFund{}, Outcome: OutcomeDegraded, Source: source, Err: err}
}

func (s *TotalsService) readTotals(ctx context.Context, reader contracts.StateReader, issue model.IssueInformation) ([]model.TotalFund, error) {
	if snap, ok := reader.(contracts.Snapshotter); ok {
		pinned, err := snap.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot state: %w", err)
		}
		reader = pinned
	}

	platform, platformID := string(issue.Platform), issue.PlatformID
	count, err := reader.TokenCount(ctx, platform, platformID)
	if err != nil {
		return nil, fmt.Errorf("token count: %w", err)
	}

	totals := make([]model.TotalFund, 0)
	for i := uint64(0); i < count; i++ {
		address, ok, err := reader.TokenAtIndex(ctx, platform, platformID, i)
		if err != nil {
			return nil, fmt.Errorf("token at index %d: %w", i, err)
		}
		if !ok {
			s.logger.Debug("token index absent", zap.String("platform_id", platformID), zap.Uint64("index", i))
			continue
		}
		amount, err := reader.Amount(ctx, platform, platformID, address)
		if err != nil {
			return nil, fmt.Errorf("amount for %s: %w", address, err)
		}
		info, ok, err := s.registry.Resolve(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("resolve token %s: %w", address, err)
		}
		if !ok {
			s.logger.Debug("dropping unresolved token", zap.String("token", address))
			continue
		}
		totals = append(totals, totalFor(info, address, amount))
	}
	return totals, nil
}

func totalFor(info model.TokenInfo, address string, raw *big.Int) model.TotalFund {
	if info.Address != "" {
		address = info.Address
	}
	return model.TotalFund{
		TokenAddress: address,
		TokenSymbol:  info.Symbol,
		TotalAmount:  token.Normalize(raw, info.Decimals),
	}
}
