package funds

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"fundscope/internal/contracts"
	"fundscope/internal/model"
	"fundscope/internal/token"
)

// fakeState is an in-memory on-chain repository. An empty token string at an
// index reads as absent.
type fakeState struct {
	mu      sync.Mutex
	tokens  []string
	amounts map[string]*big.Int
	err     error
	calls   int
}

func newFakeState(tokens ...string) *fakeState {
	return &fakeState{tokens: tokens, amounts: make(map[string]*big.Int)}
}

func (f *fakeState) set(token string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts[strings.ToLower(token)] = amount
}

func (f *fakeState) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeState) TokenCount(_ context.Context, _, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return uint64(len(f.tokens)), nil
}

func (f *fakeState) TokenAtIndex(_ context.Context, _, _ string, index uint64) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if index >= uint64(len(f.tokens)) || f.tokens[index] == "" {
		return "", false, nil
	}
	return f.tokens[index], true, nil
}

func (f *fakeState) Amount(_ context.Context, _, _ string, token string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	amount, ok := f.amounts[strings.ToLower(token)]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(amount), nil
}

// snapshottingState records how often a snapshot was taken.
type snapshottingState struct {
	*fakeState
	snapshots int
	snapErr   error
}

func (s *snapshottingState) Snapshot(context.Context) (contracts.StateReader, error) {
	s.snapshots++
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.fakeState, nil
}

// contextState fails reads once its context is done, as an RPC-backed reader
// would.
type contextState struct {
	*fakeState
}

func (s contextState) TokenCount(ctx context.Context, platform, platformID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.fakeState.TokenCount(ctx, platform, platformID)
}

// flakyRegistry fails the first failures lookups and then defers to next.
type flakyRegistry struct {
	next     token.Registry
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyRegistry) Resolve(ctx context.Context, address string) (model.TokenInfo, bool, error) {
	r.mu.Lock()
	r.calls++
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return model.TokenInfo{}, false, errors.New("token metadata rpc unavailable")
	}
	return r.next.Resolve(ctx, address)
}

type fakeProfiles struct {
	profiles map[string]model.UserProfile
	calls    int
}

func (f *fakeProfiles) ProfileFor(_ context.Context, userID string) (model.UserProfile, error) {
	f.calls++
	p, ok := f.profiles[userID]
	if !ok {
		return model.UserProfile{}, errors.New("profile not found")
	}
	return p, nil
}

type fakePrices struct {
	prices map[string]decimal.Decimal
	err    error
	seen   []model.TotalFund
}

func (f *fakePrices) USDValue(_ context.Context, totals ...model.TotalFund) (decimal.Decimal, error) {
	f.seen = append(f.seen, totals...)
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.TotalAmount.Mul(f.prices[t.TokenSymbol]))
	}
	return sum, nil
}

type recordingEvicter struct {
	mu      sync.Mutex
	evicted []int64
}

func (r *recordingEvicter) Evict(requestID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, requestID)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.RequestFunded
}

func (r *recordingPublisher) Publish(_ context.Context, event model.RequestFunded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) published() []model.RequestFunded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RequestFunded(nil), r.events...)
}

func wei(units int64, decimals int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(units), scale)
}
