package funds

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundscope/internal/model"
	"fundscope/internal/storage/memory"
	"fundscope/internal/token"
)

const (
	fndAddress = "0xAA"
	daiAddress = "0xDA"
)

func testRegistry() *token.StaticRegistry {
	return token.NewStaticRegistry(
		model.TokenInfo{Address: fndAddress, Symbol: "FND", Name: "FundRequest", Decimals: 18},
		model.TokenInfo{Address: daiAddress, Symbol: "DAI", Name: "Dai", Decimals: 18},
	)
}

type totalsFixture struct {
	store  *memory.Store
	claims *fakeState
	funds  *fakeState
	svc    *TotalsService
}

func newTotalsFixture(t *testing.T) *totalsFixture {
	t.Helper()
	f := &totalsFixture{
		store:  memory.NewStore(),
		claims: newFakeState(),
		funds:  newFakeState(),
	}
	svc, err := NewTotalsService(TotalsConfig{
		Requests: f.store.Requests(),
		Claims:   f.claims,
		Funds:    f.funds,
		Registry: testRegistry(),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *totalsFixture) addRequest(t *testing.T, id int64, status model.RequestStatus) {
	t.Helper()
	_, err := f.store.Requests().Save(context.Background(), model.Request{
		ID:     id,
		Status: status,
		IssueInformation: model.IssueInformation{
			Platform:   model.PlatformGithub,
			PlatformID: "issue-" + big.NewInt(id).String(),
		},
	})
	require.NoError(t, err)
}

func TestTotals_OpenRequestReadsFundState(t *testing.T) {
	f := newTotalsFixture(t)
	f.addRequest(t, 7, model.RequestStatusOpen)
	f.funds.tokens = []string{fndAddress}
	f.funds.set(fndAddress, wei(2000, 18))

	res := f.svc.Result(context.Background(), 7)
	require.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, SourceFund, res.Source)
	require.Len(t, res.Totals, 1)
	assert.Equal(t, fndAddress, res.Totals[0].TokenAddress)
	assert.Equal(t, "FND", res.Totals[0].TokenSymbol)
	assert.True(t, decimal.NewFromInt(2000).Equal(res.Totals[0].TotalAmount))
	assert.Zero(t, f.claims.callCount())
}

func TestTotals_ClaimedRequestReadsClaimState(t *testing.T) {
	f := newTotalsFixture(t)
	f.addRequest(t, 8, model.RequestStatusClaimed)
	f.claims.tokens = []string{daiAddress}
	f.claims.set(daiAddress, wei(15, 17))
	f.funds.tokens = []string{fndAddress}
	f.funds.set(fndAddress, wei(1, 18))

	totals := f.svc.TotalFundsForRequest(context.Background(), 8)
	require.Len(t, totals, 1)
	assert.Equal(t, "DAI", totals[0].TokenSymbol)
	assert.Equal(t, "1.5", totals[0].TotalAmount.String())
	assert.Zero(t, f.funds.callCount())
}

func TestTotals_UnknownRequestIsEmpty(t *testing.T) {
	f := newTotalsFixture(t)

	res := f.svc.Result(context.Background(), 404)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.NotNil(t, res.Totals)
	assert.Empty(t, res.Totals)
	assert.Zero(t, f.funds.callCount())
	assert.Zero(t, f.claims.callCount())
}

func TestTotals_UpstreamFailureDegradesAndIsNotCached(t *testing.T) {
	f := newTotalsFixture(t)
	f.addRequest(t, 9, model.RequestStatusOpen)
	f.funds.err = errors.New("rpc unavailable")

	res := f.svc.Result(context.Background(), 9)
	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.Equal(t, SourceFund, res.Source)
	assert.Empty(t, res.Totals)
	assert.ErrorContains(t, res.Err, "rpc unavailable")

	f.funds.err = nil
	f.funds.tokens = []string{fndAddress}
	f.funds.set(fndAddress, wei(3, 18))

	totals := f.svc.TotalFundsForRequest(context.Background(), 9)
	require.Len(t, totals, 1)
	assert.True(t, decimal.NewFromInt(3).Equal(totals[0].TotalAmount))
}

func TestTotals_DropsUnresolvedAndAbsentTokens(t *testing.T) {
	f := newTotalsFixture(t)
	f.addRequest(t, 10, model.RequestStatusOpen)
	f.funds.tokens = []string{"0xUNKNOWN", "", fndAddress}
	f.funds.set("0xUNKNOWN", big.NewInt(5))
	f.funds.set(fndAddress, wei(1, 18))

	res := f.svc.Result(context.Background(), 10)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Len(t, res.Totals, 1)
	assert.Equal(t, "FND", res.Totals[0].TokenSymbol)
}

func TestTotals_PreservesIndexOrder(t *testing.T) {
	f := newTotalsFixture(t)
	f.addRequest(t, 11, model.RequestStatusOpen)
	f.funds.tokens = []string{daiAddress, fndAddress}

	totals := f.svc.TotalFundsForRequest(context.Background(), 11)
	require.Len(t, totals, 2)
	assert.Equal(t, "DAI", totals[0].TokenSymbol)
	assert.Equal(t, "FND", totals[1].TokenSymbol)
	assert.True(t, totals[0].TotalAmount.IsZero())
}

func TestTotals_CachedUntilEvicted(t *testing.T) {
	f := newTotalsFixture(t)
	f.addRequest(t, 42, model.RequestStatusOpen)
	f.funds.tokens = []string{fndAddress}
	f.funds.set(fndAddress, wei(1, 18))
	ctx := context.Background()

	first := f.svc.TotalFundsForRequest(ctx, 42)
	calls := f.funds.callCount()
	f.funds.set(fndAddress, wei(2, 18))

	cached := f.svc.TotalFundsForRequest(ctx, 42)
	assert.Equal(t, first, cached)
	assert.Equal(t, calls, f.funds.callCount())

	f.svc.Evict(42)
	fresh := f.svc.TotalFundsForRequest(ctx, 42)
	require.Len(t, fresh, 1)
	assert.True(t, decimal.NewFromInt(2).Equal(fresh[0].TotalAmount))
}

func TestTotals_ClearDropsEveryRequest(t *testing.T) {
	f := newTotalsFixture(t)
	f.addRequest(t, 1, model.RequestStatusOpen)
	f.addRequest(t, 2, model.RequestStatusOpen)
	f.funds.tokens = []string{fndAddress}
	f.funds.set(fndAddress, wei(1, 18))
	ctx := context.Background()

	f.svc.TotalFundsForRequest(ctx, 1)
	f.svc.TotalFundsForRequest(ctx, 2)
	f.funds.set(fndAddress, wei(9, 18))

	f.svc.Clear()
	for _, id := range []int64{1, 2} {
		totals := f.svc.TotalFundsForRequest(ctx, id)
		require.Len(t, totals, 1)
		assert.True(t, decimal.NewFromInt(9).Equal(totals[0].TotalAmount))
	}
}

func TestTotals_TokenLookupFailureIsNotCached(t *testing.T) {
	store := memory.NewStore()
	_, err := store.Requests().Save(context.Background(), model.Request{
		ID:               7,
		Status:           model.RequestStatusOpen,
		IssueInformation: model.IssueInformation{Platform: model.PlatformGithub, PlatformID: "7"},
	})
	require.NoError(t, err)

	state := newFakeState(fndAddress)
	state.set(fndAddress, wei(2000, 18))
	registry := &flakyRegistry{next: testRegistry(), failures: 1}
	svc, err := NewTotalsService(TotalsConfig{
		Requests: store.Requests(),
		Claims:   newFakeState(),
		Funds:    state,
		Registry: registry,
	})
	require.NoError(t, err)

	first := svc.Result(context.Background(), 7)
	assert.Equal(t, OutcomeDegraded, first.Outcome)
	assert.Empty(t, first.Totals)
	assert.ErrorContains(t, first.Err, "token metadata rpc unavailable")

	second := svc.Result(context.Background(), 7)
	require.Equal(t, OutcomeOK, second.Outcome)
	require.Len(t, second.Totals, 1)
	assert.Equal(t, "FND", second.Totals[0].TokenSymbol)
	assert.True(t, decimal.NewFromInt(2000).Equal(second.Totals[0].TotalAmount))
}

func TestTotals_CachedFillIgnoresCallerCancellation(t *testing.T) {
	store := memory.NewStore()
	_, err := store.Requests().Save(context.Background(), model.Request{
		ID:               11,
		Status:           model.RequestStatusOpen,
		IssueInformation: model.IssueInformation{Platform: model.PlatformGithub, PlatformID: "11"},
	})
	require.NoError(t, err)

	state := contextState{fakeState: newFakeState(fndAddress)}
	state.set(fndAddress, wei(3, 18))
	svc, err := NewTotalsService(TotalsConfig{
		Requests: store.Requests(),
		Claims:   newFakeState(),
		Funds:    state,
		Registry: testRegistry(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeDegraded, svc.Compute(ctx, 11).Outcome)

	res := svc.Result(ctx, 11)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Len(t, res.Totals, 1)
	assert.True(t, decimal.NewFromInt(3).Equal(res.Totals[0].TotalAmount))
}

func TestTotals_SnapshotsBeforeReading(t *testing.T) {
	store := memory.NewStore()
	_, err := store.Requests().Save(context.Background(), model.Request{
		ID:               5,
		Status:           model.RequestStatusFunded,
		IssueInformation: model.IssueInformation{Platform: model.PlatformGithub, PlatformID: "5"},
	})
	require.NoError(t, err)

	state := &snapshottingState{fakeState: newFakeState(fndAddress)}
	state.set(fndAddress, wei(4, 18))
	svc, err := NewTotalsService(TotalsConfig{
		Requests: store.Requests(),
		Claims:   newFakeState(),
		Funds:    state,
		Registry: testRegistry(),
	})
	require.NoError(t, err)

	res := svc.Compute(context.Background(), 5)
	require.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, 1, state.snapshots)

	state.snapErr = errors.New("no head")
	res = svc.Compute(context.Background(), 5)
	assert.Equal(t, OutcomeDegraded, res.Outcome)
}

func TestNewTotalsServiceRequiresCollaborators(t *testing.T) {
	_, err := NewTotalsService(TotalsConfig{})
	assert.Error(t, err)

	_, err = NewTotalsService(TotalsConfig{Requests: memory.NewStore().Requests(), Claims: newFakeState(), Funds: newFakeState()})
	assert.Error(t, err)
}
