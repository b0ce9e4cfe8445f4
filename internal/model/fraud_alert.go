package model

import "time"

// FraudAlert is an append-only record created by the fraud evaluator. There
// is no uniqueness constraint; concurrent evaluations may write duplicates.
type FraudAlert struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"size:36;not null;index:idx_fraud_user_created,priority:1" json:"userId"`
	TransactionID string    `gorm:"size:36;not null" json:"transactionId"`
	Reason        string    `gorm:"size:255;not null" json:"reason"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index:idx_fraud_user_created,priority:2" json:"createdAt"`
}

func (FraudAlert) TableName() string { return "fraud_alert" }
