package models

import "time"

// Ledger entry kinds.
const (
	LedgerKindPoints = "points"
	LedgerKindXP     = "xp"
)

// LedgerEntry is an immutable audit record of a single balance change.
// The current account balance must always equal the fold of its entries.
type LedgerEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AccountID      uint      `gorm:"index;not null" json:"account_id"`
	Delta          int       `gorm:"not null" json:"delta"`
	Kind           string    `gorm:"size:16;not null;index" json:"kind"`
	Reason         string    `gorm:"size:255" json:"reason"`
	IdempotencyKey *string   `gorm:"size:191;uniqueIndex" json:"-"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}
