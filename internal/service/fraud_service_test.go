package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leozhang2048/ledger-service/internal/config"
	"github.com/leozhang2048/ledger-service/internal/model"
	"github.com/leozhang2048/ledger-service/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFraud(t *testing.T, cfg config.FraudConfig) (*FraudService, repo.RepositoryInterface, context.Context) {
	t.Helper()
	_, r, ctx := newTestService(t)
	return NewFraudService(r, cfg, zap.NewNop().Sugar()), r, ctx
}

func seedTransaction(t *testing.T, r repo.RepositoryInterface, ctx context.Context, userID string, cents int64, age time.Duration) model.Transaction {
	t.Helper()
	entry := model.Transaction{
		TransactionID: uuid.NewString(),
		UserID:        userID,
		AmountCents:   cents,
		Type:          model.TypeDeposit,
		CreatedAt:     time.Now().UTC().Add(-age),
	}
	require.NoError(t, r.DB(ctx).Create(&entry).Error)
	return entry
}

func alertCount(t *testing.T, r repo.RepositoryInterface, ctx context.Context, userID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, r.DB(ctx).Model(&model.FraudAlert{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func TestFraud_TwoHighValueIsNotSuspicious(t *testing.T) {
	fraud, r, ctx := newTestFraud(t, config.FraudConfig{HighAmountCents: 10000, WindowMinutes: 10})
	userID := uuid.NewString()

	seedTransaction(t, r, ctx, userID, 10000, 2*time.Minute)
	trigger := seedTransaction(t, r, ctx, userID, 15000, time.Second)

	flagged, err := fraud.CheckAndFlagIfSuspicious(ctx, &trigger)
	require.NoError(t, err)
	assert.False(t, flagged)
	assert.Equal(t, int64(0), alertCount(t, r, ctx, userID))
}

func TestFraud_ThreeHighValueWritesOneAlert(t *testing.T) {
	fraud, r, ctx := newTestFraud(t, config.FraudConfig{HighAmountCents: 10000, WindowMinutes: 10})
	userID := uuid.NewString()

	seedTransaction(t, r, ctx, userID, 10000, 3*time.Minute)
	seedTransaction(t, r, ctx, userID, 12000, 2*time.Minute)
	seedTransaction(t, r, ctx, userID, 9999, 90*time.Second) // below threshold, ignored
	trigger := seedTransaction(t, r, ctx, userID, 20000, time.Second)

	flagged, err := fraud.CheckAndFlagIfSuspicious(ctx, &trigger)
	require.NoError(t, err)
	assert.True(t, flagged)

	var alerts []model.FraudAlert
	require.NoError(t, r.DB(ctx).Where("user_id = ?", userID).Find(&alerts).Error)
	require.Len(t, alerts, 1)
	assert.Equal(t, trigger.TransactionID, alerts[0].TransactionID)
	assert.Equal(t, ">=3 high-value tx within 10 min", alerts[0].Reason)
	assert.NotEmpty(t, alerts[0].ID)
}

func TestFraud_OldTransactionsOutsideWindowIgnored(t *testing.T) {
	fraud, r, ctx := newTestFraud(t, config.FraudConfig{HighAmountCents: 10000, WindowMinutes: 5})
	userID := uuid.NewString()

	seedTransaction(t, r, ctx, userID, 10000, 20*time.Minute)
	seedTransaction(t, r, ctx, userID, 10000, 15*time.Minute)
	seedTransaction(t, r, ctx, userID, 10000, 2*time.Minute)
	trigger := seedTransaction(t, r, ctx, userID, 10000, time.Second)

	flagged, err := fraud.CheckAndFlagIfSuspicious(ctx, &trigger)
	require.NoError(t, err)
	assert.False(t, flagged)
	assert.Equal(t, int64(0), alertCount(t, r, ctx, userID))
}

func TestFraud_ReasonEmbedsConfiguredWindow(t *testing.T) {
	fraud, r, ctx := newTestFraud(t, config.FraudConfig{HighAmountCents: 5000, WindowMinutes: 30})
	userID := uuid.NewString()

	seedTransaction(t, r, ctx, userID, 5000, 20*time.Minute)
	seedTransaction(t, r, ctx, userID, 6000, 10*time.Minute)
	trigger := seedTransaction(t, r, ctx, userID, 7000, time.Second)

	flagged, err := fraud.CheckAndFlagIfSuspicious(ctx, &trigger)
	require.NoError(t, err)
	assert.True(t, flagged)

	var alert model.FraudAlert
	require.NoError(t, r.DB(ctx).Where("user_id = ?", userID).First(&alert).Error)
	assert.Equal(t, ">=3 high-value tx within 30 min", alert.Reason)
}

func TestFraud_ManyHighValueBeyondFetchFloor(t *testing.T) {
	fraud, r, ctx := newTestFraud(t, config.FraudConfig{HighAmountCents: 10000, WindowMinutes: 10})
	userID := uuid.NewString()

	// more high-value rows than the fetch floor; the count-driven limit must
	// keep the in-memory filter from missing matches
	for i := 0; i < 15; i++ {
		seedTransaction(t, r, ctx, userID, 10000+int64(i), time.Duration(i+2)*time.Second)
	}
	trigger := seedTransaction(t, r, ctx, userID, 50000, time.Second)

	flagged, err := fraud.CheckAndFlagIfSuspicious(ctx, &trigger)
	require.NoError(t, err)
	assert.True(t, flagged)
}

func TestProcess_ThirdHighValueDepositIsFlagged(t *testing.T) {
	svc, r, ctx := newTestService(t)
	userID := uuid.NewString()

	res := deposit(t, svc, ctx, userID, "100.00")
	assert.False(t, res.Flagged)
	res = deposit(t, svc, ctx, userID, "150.00")
	assert.False(t, res.Flagged)

	res = deposit(t, svc, ctx, userID, "200.00")
	assert.True(t, res.Flagged)
	assert.Equal(t, int64(1), alertCount(t, r, ctx, userID))

	var alert model.FraudAlert
	require.NoError(t, r.DB(ctx).Where("user_id = ?", userID).First(&alert).Error)
	assert.Equal(t, res.Transaction.TransactionID, alert.TransactionID)

	// replaying the flagged transaction must not re-run the evaluator
	replay, err := svc.Process(ctx, ProcessRequest{
		TransactionID: res.Transaction.TransactionID,
		UserID:        userID,
		Amount:        "200.00",
		Type:          model.TypeDeposit,
	})
	require.NoError(t, err)
	assert.False(t, replay.Flagged)
	assert.Equal(t, int64(1), alertCount(t, r, ctx, userID))
}
