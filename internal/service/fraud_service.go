package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leozhang2048/ledger-service/internal/config"
	"github.com/leozhang2048/ledger-service/internal/metrics"
	"github.com/leozhang2048/ledger-service/internal/model"
	"github.com/leozhang2048/ledger-service/internal/repo"
	"go.uber.org/zap"
)

// recentFetchFloor keeps the history fetch generous so the in-memory
// high-value filter cannot miss matches when the count is small.
const recentFetchFloor = 10

// FraudService inspects recent transaction history after each committed
// write and records an alert when the frequency/value threshold is crossed.
//
// Evaluation is read-then-maybe-write without any lock: concurrent
// evaluations for one user may both alert, and duplicate alerts are
// tolerated.
type FraudService struct {
	repo repo.RepositoryInterface
	cfg  config.FraudConfig
	log  *zap.SugaredLogger
}

// NewFraudService returns FraudService.
func NewFraudService(r repo.RepositoryInterface, cfg config.FraudConfig, logger *zap.SugaredLogger) *FraudService {
	return &FraudService{repo: r, cfg: cfg, log: logger}
}

// CheckAndFlagIfSuspicious flags tx's user when the trailing window holds
// three or more high-value transactions. It returns whether an alert was
// written.
func (s *FraudService) CheckAndFlagIfSuspicious(ctx context.Context, tx *model.Transaction) (bool, error) {
	until := time.Now().UTC()
	since := until.Add(-time.Duration(s.cfg.WindowMinutes) * time.Minute)

	count, err := s.repo.CountHighValue(ctx, tx.UserID, since, until, s.cfg.HighAmountCents)
	if err != nil {
		return false, err
	}

	fetch := int(count)
	if fetch < recentFetchFloor {
		fetch = recentFetchFloor
	}
	recent, err := s.repo.RecentTransactions(ctx, tx.UserID, since, until, fetch)
	if err != nil {
		return false, err
	}

	highValue := 0
	for _, t := range recent {
		if t.AmountCents >= s.cfg.HighAmountCents {
			highValue++
		}
	}
	if highValue < 3 {
		return false, nil
	}

	alert := &model.FraudAlert{
		ID:            uuid.NewString(),
		UserID:        tx.UserID,
		TransactionID: tx.TransactionID,
		Reason:        fmt.Sprintf(">=3 high-value tx within %d min", s.cfg.WindowMinutes),
	}
	if err := s.repo.CreateFraudAlert(ctx, alert); err != nil {
		return false, err
	}
	metrics.FraudAlertsTotal.Inc()
	s.log.Warnf("fraud alert for user %s due to high frequency high-value tx", tx.UserID)

	payload, _ := json.Marshal(map[string]interface{}{
		"alert_id":       alert.ID,
		"user_id":        alert.UserID,
		"transaction_id": alert.TransactionID,
		"reason":         alert.Reason,
	})
	evt := &model.OutboxEvent{
		Aggregate: "FraudAlert", AggregateID: alert.UserID, EventType: "FraudAlertRaised", Payload: string(payload),
	}
	if err := s.repo.CreateOutboxEvent(ctx, s.repo.DB(ctx), evt); err != nil {
		s.log.Errorw("fraud alert outbox write failed", "alert_id", alert.ID, "err", err)
	}

	return true, nil
}
