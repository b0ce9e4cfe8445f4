package model

import "time"

// Balance is the single mutable row per user. BalanceCents equals the signed
// sum of all committed transactions for that user and never goes negative.
type Balance struct {
	UserID       string    `gorm:"primaryKey;size:36" json:"userId"`
	BalanceCents int64     `gorm:"not null;default:0" json:"balanceCents"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Balance) TableName() string { return "user_balance" }
