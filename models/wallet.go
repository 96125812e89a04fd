// models/wallet.go
package models

import (
	"time"
)

// Wallet holds a user's coin balance. Debits and credits are single
// conditional UPDATE statements so they never partially apply.
type Wallet struct {
	ID      string `json:"id" gorm:"primaryKey"`
	UserID  string `json:"user_id" gorm:"uniqueIndex;not null"`
	Balance int64  `json:"balance" gorm:"not null;default:0"` // coins

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CoinTransaction kinds
const (
	CoinTxnBattleEntry  = "battle_entry"
	CoinTxnBattlePayout = "battle_payout"
	CoinTxnBattleRefund = "battle_refund"
	CoinTxnPurchase     = "purchase"
)

// CoinTransaction is an append-only journal row written alongside every
// wallet mutation, for audit and reconciliation.
type CoinTransaction struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"not null;index"`
	Amount    int64     `json:"amount" gorm:"not null"` // signed: debits negative
	Kind      string    `json:"kind" gorm:"type:varchar(32);not null"`
	Reference string    `json:"reference,omitempty"` // battle id, payment event id, ...
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// PaymentEvent records one external payment confirmation. The unique index
// on (provider, event_id) is the dedup guard: replayed webhook deliveries
// fail the insert inside the crediting transaction and never double-credit.
type PaymentEvent struct {
	ID       string `json:"id" gorm:"primaryKey"`
	Provider string `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:idx_provider_event"`
	EventID  string `json:"event_id" gorm:"not null;uniqueIndex:idx_provider_event"`
	UserID   string `json:"user_id" gorm:"not null;index"`
	Amount   int64  `json:"amount" gorm:"not null"` // coins credited

	ProcessedAt time.Time `json:"processed_at" gorm:"autoCreateTime"`
}
