package models

import "time"

// Reward types.
const (
	RewardPhysical = "physical"
	RewardDigital  = "digital"
	RewardCoupon   = "coupon"
	RewardVIP      = "vip"
)

// UnlimitedStock marks a reward without inventory limits.
const UnlimitedStock = -1

// Reward is a catalog row exchangeable for points. Stock is the original
// inventory; the remaining amount is always derived as stock minus the count
// of redemption rows, never kept as a separately decremented counter.
type Reward struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:128;not null" json:"name"`
	Type       string    `gorm:"size:16;not null" json:"type"`
	PointsCost int       `gorm:"not null" json:"points_cost"`
	Stock      int       `gorm:"default:-1;not null" json:"stock"`
	Active     bool      `gorm:"default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// RewardRedemption is the atomic unit of a redemption: inserting this row,
// debiting the points and consuming one unit of stock succeed or fail
// together.
type RewardRedemption struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  uint      `gorm:"index;not null" json:"account_id"`
	RewardID   uint      `gorm:"index;not null" json:"reward_id"`
	Code       *string   `gorm:"size:64;uniqueIndex" json:"code,omitempty"`
	RedeemedAt time.Time `gorm:"not null" json:"redeemed_at"`
}
