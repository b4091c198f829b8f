package models

import "time"

// Badge rarities.
const (
	RarityCommon    = "common"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// Badge is a catalog row authored by admins; the engine only reads it.
// The requirement predicate is stored as operator + metric + operand and
// decoded by the badge engine into a closed requirement type.
type Badge struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Code          string    `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Name          string    `gorm:"size:128;not null" json:"name"`
	Description   string    `gorm:"size:255" json:"description"`
	Rarity        string    `gorm:"size:16;default:'common'" json:"rarity"`
	RequireOp     string    `gorm:"size:32;not null" json:"require_op"`
	RequireMetric string    `gorm:"size:64;not null" json:"require_metric"`
	RequireValue  int       `json:"require_value"`
	PointsOnGrant int       `json:"points_on_grant"`
	Active        bool      `gorm:"default:true" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccountBadge records a grant. The unique index on (account_id, badge_id)
// is the enforcement point for at-most-one grant per account and badge.
type AccountBadge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"uniqueIndex:idx_account_badge;not null" json:"account_id"`
	BadgeID   uint      `gorm:"uniqueIndex:idx_account_badge;not null" json:"badge_id"`
	GrantedAt time.Time `gorm:"not null" json:"granted_at"`
}
