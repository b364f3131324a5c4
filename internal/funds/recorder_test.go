package funds

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundscope/internal/model"
	"fundscope/internal/storage"
	"fundscope/internal/storage/memory"
)

func recordCommand(requestID int64, txHash string) RecordCommand {
	return RecordCommand{
		Amount:          wei(10, 18),
		RequestID:       requestID,
		Token:           fndAddress,
		Timestamp:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		FunderAddress:   "0xF00",
		TransactionHash: txHash,
	}
}

func TestRecordFund_AttributesPendingFund(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	_, err := store.PendingFunds().Save(ctx, model.PendingFund{TransactionHash: "0xTX", UserID: "u1"})
	require.NoError(t, err)

	evicter := &recordingEvicter{}
	publisher := &recordingPublisher{}
	rec := NewRecorder(store, evicter, publisher, nil, nil)

	saved, err := rec.RecordFund(ctx, recordCommand(3, "0xtx"))
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.FunderUserID)
	assert.Equal(t, "0xF00", saved.FunderAddress)

	stored, err := store.Funds().FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.FunderUserID)
}

func TestRecordFund_WithoutPendingFundIsAddressOnly(t *testing.T) {
	store := memory.NewStore()
	rec := NewRecorder(store, nil, nil, nil, nil)

	saved, err := rec.RecordFund(context.Background(), recordCommand(3, "0xunknown"))
	require.NoError(t, err)
	assert.False(t, saved.HasFunderUser())
}

func TestRecordFund_EvictsAndPublishesAfterCommit(t *testing.T) {
	store := memory.NewStore()
	evicter := &recordingEvicter{}
	publisher := &recordingPublisher{}
	rec := NewRecorder(store, evicter, publisher, nil, nil)

	cmd := recordCommand(42, "")
	saved, err := rec.RecordFund(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, []int64{42}, evicter.evicted)
	events := publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, int64(42), events[0].RequestID)
	assert.Equal(t, saved.ID, events[0].Fund.ID)
	assert.Equal(t, cmd.Timestamp, events[0].Timestamp)
}

func TestRecordFund_RollbackSkipsNotification(t *testing.T) {
	store := memory.NewStore()
	boom := errors.New("commit failed")
	store.SetCommitHook(func() error { return boom })
	publisher := &recordingPublisher{}
	rec := NewRecorder(store, &recordingEvicter{}, publisher, nil, nil)

	_, err := rec.RecordFund(context.Background(), recordCommand(42, ""))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, publisher.published())

	store.SetCommitHook(nil)
	all, err := store.Funds().FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRecordFund_RejectsInvalidCommands(t *testing.T) {
	publisher := &recordingPublisher{}
	rec := NewRecorder(memory.NewStore(), nil, publisher, nil, nil)
	ctx := context.Background()

	cases := map[string]RecordCommand{
		"missing request": {Amount: big.NewInt(1), Token: fndAddress},
		"missing amount":  {RequestID: 1, Token: fndAddress},
		"negative amount": {RequestID: 1, Token: fndAddress, Amount: big.NewInt(-5)},
		"missing token":   {RequestID: 1, Amount: big.NewInt(1)},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := rec.RecordFund(ctx, cmd)
			assert.ErrorIs(t, err, storage.ErrInvalidInput)
		})
	}
	assert.Empty(t, publisher.published())
}

func TestRecordFund_TotalsReflectNewFund(t *testing.T) {
	f := newTotalsFixture(t)
	f.addRequest(t, 42, model.RequestStatusOpen)
	f.funds.tokens = []string{fndAddress}
	f.funds.set(fndAddress, wei(1, 18))
	ctx := context.Background()

	before := f.svc.TotalFundsForRequest(ctx, 42)
	require.Len(t, before, 1)

	// the transfer lands on chain, then the observation is recorded
	f.funds.set(fndAddress, wei(11, 18))
	rec := NewRecorder(f.store, f.svc, nil, nil, nil)
	_, err := rec.RecordFund(ctx, recordCommand(42, ""))
	require.NoError(t, err)

	after := f.svc.TotalFundsForRequest(ctx, 42)
	require.Len(t, after, 1)
	assert.True(t, decimal.NewFromInt(11).Equal(after[0].TotalAmount))
}

func TestLedger(t *testing.T) {
	store := memory.NewStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	_, err := ledger.RegisterPending(ctx, model.PendingFund{TransactionHash: "0x1"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	pending, err := ledger.RegisterPending(ctx, model.PendingFund{TransactionHash: "0x1", UserID: "u1"})
	require.NoError(t, err)
	assert.NotZero(t, pending.ID)

	rec := NewRecorder(store, nil, nil, nil, nil)
	saved, err := rec.RecordFund(ctx, recordCommand(5, "0x1"))
	require.NoError(t, err)

	got, err := ledger.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.FunderUserID)

	all, err := ledger.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	byRequest, err := ledger.FindByRequestID(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, byRequest, 1)

	_, err = ledger.FindByID(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
