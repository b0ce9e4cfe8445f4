package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/leozhang2048/ledger-service/internal/model"
	"github.com/leozhang2048/ledger-service/internal/money"
	"github.com/leozhang2048/ledger-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidTransactionType means the request type is neither deposit nor
// withdraw.
var ErrInvalidTransactionType = errors.New("type must be deposit or withdraw")

// History limits enforced on read queries.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// ProcessRequest is one incoming ledger operation. TransactionID is the
// client-supplied idempotency key.
type ProcessRequest struct {
	TransactionID string
	UserID        string
	Amount        string
	Type          string
}

// ProcessResult carries the committed (or replayed) entry and the balance
// observed at commit time.
type ProcessResult struct {
	Transaction  model.Transaction
	BalanceCents int64
	Flagged      bool
}

// LedgerService orchestrates one transaction request: idempotency check,
// balance lock, arithmetic, persistence, then fraud evaluation after commit.
type LedgerService struct {
	repo  repo.RepositoryInterface
	fraud *FraudService
	log   *zap.SugaredLogger
}

// NewLedgerService returns LedgerService.
func NewLedgerService(r repo.RepositoryInterface, fraud *FraudService, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, fraud: fraud, log: logger}
}

// Process applies one deposit or withdrawal as a single unit of work.
//
// The whole read-modify-write runs inside one serializable storage
// transaction so two concurrent requests for the same user can never both
// read a stale balance. A replayed TransactionID returns the previously
// committed entry without touching funds or re-running fraud evaluation.
func (s *LedgerService) Process(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	if req.Type != model.TypeDeposit && req.Type != model.TypeWithdraw {
		return ProcessResult{}, ErrInvalidTransactionType
	}
	cents, err := money.ParseAmount(req.Amount)
	if err != nil {
		return ProcessResult{}, err
	}

	var (
		result   ProcessResult
		replayed bool
	)
	err = s.repo.WithinSerializableTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.repo.FindTransaction(ctx, tx, req.TransactionID)
		if err != nil {
			return err
		}
		if existing != nil {
			bal, err := s.repo.GetBalance(ctx, tx, existing.UserID)
			if err != nil {
				return err
			}
			result = ProcessResult{Transaction: *existing, BalanceCents: bal.BalanceCents}
			replayed = true
			return nil
		}

		bal, err := s.repo.LockBalance(ctx, tx, req.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// First transaction for this user. The insert happens without the
			// lock held; a concurrent creator may win, in which case the
			// unique constraint on user_id resolves the race and we fall
			// through to lock the winner's row.
			if cerr := s.repo.CreateBalance(ctx, tx, req.UserID); cerr != nil && !errors.Is(cerr, gorm.ErrDuplicatedKey) {
				return cerr
			}
			bal, err = s.repo.LockBalance(ctx, tx, req.UserID)
		}
		if err != nil {
			return err
		}

		newBalance := bal.BalanceCents
		if req.Type == model.TypeDeposit {
			newBalance += cents
		} else {
			if cents > bal.BalanceCents {
				return repo.ErrInsufficientFunds
			}
			newBalance -= cents
		}

		entry := model.Transaction{
			TransactionID: req.TransactionID,
			UserID:        req.UserID,
			AmountCents:   cents,
			Type:          req.Type,
		}
		if err := s.repo.CreateTransaction(ctx, tx, &entry); err != nil {
			return err
		}
		bal.BalanceCents = newBalance
		if err := s.repo.SaveBalance(ctx, tx, bal); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"transaction_id": entry.TransactionID,
			"user_id":        entry.UserID,
			"type":           entry.Type,
			"amount_cents":   entry.AmountCents,
			"balance_cents":  newBalance,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Ledger", AggregateID: req.UserID, EventType: entry.Type, Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}

		result = ProcessResult{Transaction: entry, BalanceCents: newBalance}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrInsufficientFunds):
			// expected business outcome, nothing to log
		case errors.Is(err, repo.ErrDuplicateTransaction):
			// a concurrent processor committed the same transaction id first
		default:
			s.log.Errorw("transaction rolled back",
				"transaction_id", req.TransactionID,
				"user_id", req.UserID,
				"err", err,
			)
		}
		return ProcessResult{}, err
	}

	if replayed {
		return result, nil
	}

	if err := s.repo.CacheBalance(ctx, req.UserID, result.BalanceCents); err != nil {
		s.log.Warnw("balance cache refresh failed", "user_id", req.UserID, "err", err)
	}

	// Fraud evaluation runs outside the storage transaction; the funds are
	// already committed, so an evaluator fault must not fail the request.
	flagged, err := s.fraud.CheckAndFlagIfSuspicious(ctx, &result.Transaction)
	if err != nil {
		s.log.Errorw("fraud evaluation failed",
			"transaction_id", result.Transaction.TransactionID,
			"user_id", result.Transaction.UserID,
			"err", err,
		)
		return result, nil
	}
	result.Flagged = flagged
	return result, nil
}

// GetBalance returns the user's current balance, 0 when no row exists.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	if cents, err := s.repo.GetCachedBalance(ctx, userID); err == nil {
		return cents, nil
	}
	bal, err := s.repo.GetBalance(ctx, s.repo.DB(ctx), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := s.repo.CacheBalance(ctx, userID, bal.BalanceCents); err != nil {
		s.log.Warnw("balance cache refresh failed", "user_id", userID, "err", err)
	}
	return bal.BalanceCents, nil
}

// GetHistory returns the user's transactions newest-first. limit defaults to
// DefaultHistoryLimit and is capped at MaxHistoryLimit; before, when set,
// excludes entries created at or after it.
func (s *LedgerService) GetHistory(ctx context.Context, userID string, limit int, before *time.Time) ([]model.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, clampLimit(limit), before)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
