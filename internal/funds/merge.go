package funds

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"fundscope/internal/model"
	"fundscope/internal/token"
)

// DefaultPlatformTokenSymbol is the symbol of the platform token bucket.
const DefaultPlatformTokenSymbol = "FND"

// ProfileResolver resolves internal user ids.
type ProfileResolver interface {
	ProfileFor(ctx context.Context, userID string) (model.UserProfile, error)
}

// Caller identifies the user asking for a funders view. Both fields are
// optional.
type Caller struct {
	UserID        string
	WalletAddress string
}

func (c Caller) matches(f model.Fund) bool {
	if c.UserID != "" && f.FunderUserID == c.UserID {
		return true
	}
	return c.WalletAddress != "" && strings.EqualFold(f.FunderAddress, c.WalletAddress)
}

// Merger groups fund records into funders.
type Merger struct {
	registry       token.Registry
	profiles       ProfileResolver
	platformSymbol string
	logger         *zap.Logger
}

func NewMerger(registry token.Registry, profiles ProfileResolver, platformSymbol string, logger *zap.Logger) *Merger {
	if platformSymbol == "" {
		platformSymbol = DefaultPlatformTokenSymbol
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		registry:       registry,
		profiles:       profiles,
		platformSymbol: platformSymbol,
		logger:         logger,
	}
}

// IsPlatformToken reports whether a total belongs to the platform token bucket.
func (m *Merger) IsPlatformToken(t model.TotalFund) bool {
	return strings.EqualFold(t.TokenSymbol, m.platformSymbol)
}

func funderKey(f model.Fund) string {
	if f.HasFunderUser() {
		return "user:" + f.FunderUserID
	}
	return "address:" + strings.ToLower(f.FunderAddress)
}

// Merge converts funds into one Funder per identity, in first-seen order.
// Funds whose token cannot be resolved are dropped. Buckets are backfilled
// with zero totals.
func (m *Merger) Merge(ctx context.Context, caller Caller, funds []model.Fund) []model.Funder {
	names := make(map[string]string)
	index := make(map[string]int)
	out := make([]model.Funder, 0)

	for _, f := range funds {
		info, ok, err := m.registry.Resolve(ctx, f.Token)
		if err != nil {
			m.logger.Warn("token lookup failed, dropping fund", zap.Int64("fund_id", f.ID), zap.String("token", f.Token), zap.Error(err))
			continue
		}
		if !ok {
			m.logger.Debug("dropping fund with unresolved token", zap.Int64("fund_id", f.ID), zap.String("token", f.Token))
			continue
		}
		next := m.single(ctx, names, caller, f, totalFor(info, f.Token, f.AmountInWei))

		key := funderKey(f)
		if i, seen := index[key]; seen {
			out[i] = CombineFunders(out[i], next)
			continue
		}
		index[key] = len(out)
		out = append(out, next)
	}
	return Backfill(out)
}

func (m *Merger) single(ctx context.Context, names map[string]string, caller Caller, f model.Fund, total model.TotalFund) model.Funder {
	funder := model.Funder{
		Funder:             m.displayName(ctx, names, f),
		FunderAddress:      f.FunderAddress,
		IsCurrentUser:      caller.matches(f),
		PlatformTokenTotal: model.NoTotal(),
		OtherTokenTotal:    model.NoTotal(),
	}
	if m.IsPlatformToken(total) {
		funder.PlatformTokenTotal = model.SomeTotal(total)
	} else {
		funder.OtherTokenTotal = model.SomeTotal(total)
	}
	return funder
}

func (m *Merger) displayName(ctx context.Context, names map[string]string, f model.Fund) string {
	if !f.HasFunderUser() || m.profiles == nil {
		return f.FunderAddress
	}
	if name, ok := names[f.FunderUserID]; ok {
		return name
	}
	name := f.FunderAddress
	profile, err := m.profiles.ProfileFor(ctx, f.FunderUserID)
	switch {
	case err != nil:
		m.logger.Warn("profile lookup failed", zap.String("user_id", f.FunderUserID), zap.Error(err))
	case profile.Name != "":
		name = profile.Name
	}
	names[f.FunderUserID] = name
	return name
}

// CombineFunders merges two contributions of the same funder. Bucket totals
// are combined independently and the identity of a is kept.
func CombineFunders(a, b model.Funder) model.Funder {
	a.PlatformTokenTotal = a.PlatformTokenTotal.Combine(b.PlatformTokenTotal)
	a.OtherTokenTotal = a.OtherTokenTotal.Combine(b.OtherTokenTotal)
	a.IsCurrentUser = a.IsCurrentUser || b.IsCurrentUser
	return a
}

// Backfill gives every funder a zero total in each bucket that at least one
// funder has, using the token identity of the first populated bucket.
func Backfill(funders []model.Funder) []model.Funder {
	platform, hasPlatform := firstPresent(funders, func(f model.Funder) model.OptionalTotal { return f.PlatformTokenTotal })
	other, hasOther := firstPresent(funders, func(f model.Funder) model.OptionalTotal { return f.OtherTokenTotal })

	return lo.Map(funders, func(f model.Funder, _ int) model.Funder {
		if hasPlatform && !f.PlatformTokenTotal.IsPresent() {
			f.PlatformTokenTotal = model.SomeTotal(platform.Zero())
		}
		if hasOther && !f.OtherTokenTotal.IsPresent() {
			f.OtherTokenTotal = model.SomeTotal(other.Zero())
		}
		return f
	})
}

func firstPresent(funders []model.Funder, bucket func(model.Funder) model.OptionalTotal) (model.TotalFund, bool) {
	for _, f := range funders {
		if t, ok := bucket(f).Get(); ok {
			return t, true
		}
	}
	return model.TotalFund{}, false
}

// SumBucket totals one bucket across funders, keeping the token identity of
// the first populated entry.
func SumBucket(funders []model.Funder, bucket func(model.Funder) model.OptionalTotal) model.OptionalTotal {
	return lo.Reduce(funders, func(acc model.OptionalTotal, f model.Funder, _ int) model.OptionalTotal {
		return acc.Combine(bucket(f))
	}, model.NoTotal())
}
