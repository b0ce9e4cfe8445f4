package model

import "time"

// Transaction types accepted by the ledger.
const (
	TypeDeposit  = "deposit"
	TypeWithdraw = "withdraw"
)

// Transaction is an append-only ledger entry. Rows are never updated or
// deleted; TransactionID doubles as the client-supplied idempotency key.
type Transaction struct {
	TransactionID string    `gorm:"primaryKey;size:36" json:"transactionId"`
	UserID        string    `gorm:"size:36;not null;index:idx_tx_user_created,priority:1" json:"userId"`
	AmountCents   int64     `gorm:"not null" json:"amountCents"`
	Type          string    `gorm:"size:16;not null" json:"type"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index:idx_tx_user_created,priority:2" json:"createdAt"`
}

func (Transaction) TableName() string { return "transaction" }
