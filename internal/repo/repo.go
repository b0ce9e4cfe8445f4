package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/leozhang2048/ledger-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientFunds is returned when a withdrawal exceeds the balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrDuplicateTransaction is returned when an insert loses the race for a
// transaction ID that another processor committed first.
var ErrDuplicateTransaction = errors.New("transaction id already exists")

const balanceCacheTTL = 5 * time.Minute

// RepositoryInterface restricts Repository methods (unit test mocks).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	WithinSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	FindTransaction(ctx context.Context, tx *gorm.DB, transactionID string) (*model.Transaction, error)
	GetBalance(ctx context.Context, tx *gorm.DB, userID string) (*model.Balance, error)
	LockBalance(ctx context.Context, tx *gorm.DB, userID string) (*model.Balance, error)
	CreateBalance(ctx context.Context, tx *gorm.DB, userID string) error
	SaveBalance(ctx context.Context, tx *gorm.DB, b *model.Balance) error
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	ListTransactions(ctx context.Context, userID string, limit int, before *time.Time) ([]model.Transaction, error)
	RecentTransactions(ctx context.Context, userID string, since, until time.Time, limit int) ([]model.Transaction, error)
	CountHighValue(ctx context.Context, userID string, since, until time.Time, minAmountCents int64) (int64, error)
	CreateFraudAlert(ctx context.Context, alert *model.FraudAlert) error
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	CacheBalance(ctx context.Context, userID string, cents int64) error
	GetCachedBalance(ctx context.Context, userID string) (int64, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// WithinSerializableTx runs fn inside one storage transaction at serializable
// isolation. The transaction commits when fn returns nil and rolls back
// otherwise; the handle is released on every path.
func (r *Repository) WithinSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// FindTransaction looks up a ledger entry by its idempotency key. Returns
// (nil, nil) when no row exists.
func (r *Repository) FindTransaction(ctx context.Context, tx *gorm.DB, transactionID string) (*model.Transaction, error) {
	var t model.Transaction
	err := tx.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetBalance reads a balance row without locking it.
func (r *Repository) GetBalance(ctx context.Context, tx *gorm.DB, userID string) (*model.Balance, error) {
	var b model.Balance
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// LockBalance acquires an exclusive row lock on the user's balance for the
// duration of the transaction.
func (r *Repository) LockBalance(ctx context.Context, tx *gorm.DB, userID string) (*model.Balance, error) {
	var b model.Balance
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBalance inserts a zero balance row. A concurrent creator may win the
// race; the caller handles gorm.ErrDuplicatedKey and retries the lock.
func (r *Repository) CreateBalance(ctx context.Context, tx *gorm.DB, userID string) error {
	return tx.WithContext(ctx).Create(&model.Balance{UserID: userID, BalanceCents: 0}).Error
}

// SaveBalance persists the mutated balance row.
func (r *Repository) SaveBalance(ctx context.Context, tx *gorm.DB, b *model.Balance) error {
	return tx.WithContext(ctx).Save(b).Error
}

// CreateTransaction appends a ledger entry. A primary key conflict maps to
// ErrDuplicateTransaction.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

// ListTransactions returns a user's history newest-first. before, when set,
// is an exclusive upper bound on created_at.
func (r *Repository) ListTransactions(ctx context.Context, userID string, limit int, before *time.Time) ([]model.Transaction, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var txs []model.Transaction
	err := q.Order("created_at DESC").Limit(limit).Find(&txs).Error
	return txs, err
}

// RecentTransactions returns the newest entries inside [since, until].
func (r *Repository) RecentTransactions(ctx context.Context, userID string, since, until time.Time, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at BETWEEN ? AND ?", userID, since, until).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// CountHighValue counts entries inside [since, until] at or above the
// threshold.
func (r *Repository) CountHighValue(ctx context.Context, userID string, since, until time.Time, minAmountCents int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("user_id = ? AND created_at BETWEEN ? AND ? AND amount_cents >= ?", userID, since, until, minAmountCents).
		Count(&n).Error
	return n, err
}

// CreateFraudAlert appends an alert row.
func (r *Repository) CreateFraudAlert(ctx context.Context, alert *model.FraudAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, userID string, cents int64) error {
	return r.rdb.Set(ctx, "balance:"+userID, strconv.FormatInt(cents, 10), balanceCacheTTL).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, userID string) (int64, error) {
	str, err := r.rdb.Get(ctx, "balance:"+userID).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(str, 10, 64)
}
