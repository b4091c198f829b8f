package models

import "time"

// Quest types determine the scoring window of a progress counter.
const (
	QuestDaily   = "daily"
	QuestWeekly  = "weekly"
	QuestMonthly = "monthly"
	QuestSpecial = "special"
)

// Quest is a catalog row: a repeatable target over one activity metric,
// paying points and XP on completion. Special quests have a fixed window
// ending at ExpiresAt.
type Quest struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"size:128;not null" json:"title"`
	Type         string     `gorm:"size:16;not null" json:"type"`
	Metric       string     `gorm:"size:64;not null;index" json:"metric"`
	Target       int        `gorm:"not null" json:"target"`
	RewardPoints int        `json:"reward_points"`
	RewardXP     int        `gorm:"column:reward_xp" json:"reward_xp"`
	ExpiresAt    *time.Time `json:"expires_at"`
	Active       bool       `gorm:"default:true" json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// QuestProgress is the per-account counter for one quest and one period.
// A new period key implicitly starts a fresh counter; old rows are kept for
// history and never mutated again.
type QuestProgress struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AccountID   uint       `gorm:"uniqueIndex:idx_quest_progress;not null" json:"account_id"`
	QuestID     uint       `gorm:"uniqueIndex:idx_quest_progress;not null" json:"quest_id"`
	PeriodKey   string     `gorm:"size:32;uniqueIndex:idx_quest_progress;not null" json:"period_key"`
	Progress    int        `gorm:"default:0;not null" json:"progress"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
