package models

import (
	"time"

	"gorm.io/gorm"
)

// Account holds the gamification balances for one user. Balances are a cache
// of the ledger fold and are only ever written through the engine's Ledger.
type Account struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Points     int            `gorm:"default:0;not null" json:"points"`
	XP         int            `gorm:"column:xp;default:0;not null" json:"xp"`
	Level      int            `gorm:"default:1;not null" json:"level"`
	Timezone   string         `gorm:"size:64" json:"timezone"`
	LastSpinAt *time.Time     `json:"last_spin_at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// Location resolves the account's configured timezone, falling back to UTC.
func (a *Account) Location() *time.Location {
	if a.Timezone != "" {
		if loc, err := time.LoadLocation(a.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Level < 1 {
		a.Level = 1
	}
	return nil
}
