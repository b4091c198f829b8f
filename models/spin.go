package models

import "time"

// SpinRecord stores one daily draw. The unique index on (account_id, date)
// is the enforcement point for one spin per day; Date is the calendar day in
// the account's configured timezone, formatted 2006-01-02.
type SpinRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"uniqueIndex:idx_spin_account_date;not null" json:"account_id"`
	Date      string    `gorm:"size:10;uniqueIndex:idx_spin_account_date;not null" json:"date"`
	PrizeID   string    `gorm:"size:64" json:"prize_id"`
	CreatedAt time.Time `json:"created_at"`
}
