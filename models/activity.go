package models

import "time"

// Activity types emitted by the product surface.
const (
	ActivityFeedback = "feedback"
	ActivityLogin    = "login"
	ActivityReferral = "referral"
)

// Activity is the raw event log the engine consumes: one row per feedback
// submission, login or referral. Analytics and badge statistics are derived
// from this table, never from separately maintained counters.
type Activity struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  uint      `gorm:"index:idx_activity_account_time;not null" json:"account_id"`
	Type       string    `gorm:"size:32;not null;index" json:"type"`
	Rating     int       `json:"rating"`
	TextLength int       `json:"text_length"`
	BusinessID uint      `gorm:"index" json:"business_id"`
	OccurredAt time.Time `gorm:"index:idx_activity_account_time;not null" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
