package funds

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundscope/internal/model"
)

// PriceService values bucket totals in USD.
type PriceService interface {
	USDValue(ctx context.Context, totals ...model.TotalFund) (decimal.Decimal, error)
}

// FundLister lists the ledger funds of a request.
type FundLister interface {
	FindByRequestID(ctx context.Context, requestID int64) ([]model.Fund, error)
}

// FundersService builds the funders view of a request from the ledger.
type FundersService struct {
	funds    FundLister
	merger   *Merger
	profiles ProfileResolver
	prices   PriceService
	logger   *zap.Logger
}

func NewFundersService(funds FundLister, merger *Merger, profiles ProfileResolver, prices PriceService, logger *zap.Logger) *FundersService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FundersService{
		funds:    funds,
		merger:   merger,
		profiles: profiles,
		prices:   prices,
		logger:   logger,
	}
}

// FundedBy returns the funders of a request with per-bucket totals and their
// USD value. A price failure leaves the USD value null.
func (s *FundersService) FundedBy(ctx context.Context, caller Caller, requestID int64) (model.Funders, error) {
	funds, err := s.funds.FindByRequestID(ctx, requestID)
	if err != nil {
		return model.Funders{}, fmt.Errorf("list funds for request %d: %w", requestID, err)
	}

	funders := s.merger.Merge(ctx, s.resolveCaller(ctx, caller), funds)
	out := model.Funders{
		Funders:            funders,
		PlatformTokenTotal: SumBucket(funders, func(f model.Funder) model.OptionalTotal { return f.PlatformTokenTotal }),
		OtherTokenTotal:    SumBucket(funders, func(f model.Funder) model.OptionalTotal { return f.OtherTokenTotal }),
	}
	out.USDValue = s.usdValue(ctx, requestID, out.PlatformTokenTotal, out.OtherTokenTotal)
	return out, nil
}

func (s *FundersService) resolveCaller(ctx context.Context, caller Caller) Caller {
	if caller.UserID == "" || caller.WalletAddress != "" || s.profiles == nil {
		return caller
	}
	profile, err := s.profiles.ProfileFor(ctx, caller.UserID)
	if err != nil {
		s.logger.Warn("caller profile lookup failed", zap.String("user_id", caller.UserID), zap.Error(err))
		return caller
	}
	caller.WalletAddress = profile.EtherAddress
	return caller
}

func (s *FundersService) usdValue(ctx context.Context, requestID int64, buckets ...model.OptionalTotal) decimal.NullDecimal {
	totals := make([]model.TotalFund, 0, len(buckets))
	for _, b := range buckets {
		if t, ok := b.Get(); ok {
			totals = append(totals, t)
		}
	}
	if len(totals) == 0 {
		return decimal.NewNullDecimal(decimal.Zero)
	}
	if s.prices == nil {
		return decimal.NullDecimal{}
	}
	value, err := s.prices.USDValue(ctx, totals...)
	if err != nil {
		s.logger.Warn("usd valuation failed", zap.Int64("request_id", requestID), zap.Error(err))
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(value)
}
