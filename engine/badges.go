package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scanvoice/gamify/models"
)

// RequirementOp is the closed set of badge predicate operators. Adding an
// operator means extending the switch in Satisfied; unknown operators never
// grant.
type RequirementOp string

const (
	OpCountAtLeast    RequirementOp = "count_at_least"
	OpBooleanFlag     RequirementOp = "boolean_flag"
	OpDistinctAtLeast RequirementOp = "distinct_at_least"
)

// Metric names a requirement can reference.
const (
	MetricFeedbackCount      = "feedback_count"
	MetricFiveStarCount      = "five_star_count"
	MetricDistinctBusinesses = "distinct_businesses"
	MetricLoginCount         = "login_count"
	MetricReferralCount      = "referral_count"
	MetricCurrentStreak      = "current_streak"
	MetricLevel              = "level"
)

// Requirement is one badge predicate: operator, metric, operand.
type Requirement struct {
	Op     RequirementOp
	Metric string
	Value  int
}

// RequirementOf decodes a catalog row into a Requirement.
func RequirementOf(b *models.Badge) Requirement {
	return Requirement{Op: RequirementOp(b.RequireOp), Metric: b.RequireMetric, Value: b.RequireValue}
}

// Satisfied evaluates the predicate against computed account statistics.
func (r Requirement) Satisfied(s Stats) bool {
	v, ok := s.Metric(r.Metric)
	if !ok {
		return false
	}
	switch r.Op {
	case OpCountAtLeast:
		return v >= r.Value
	case OpBooleanFlag:
		return v > 0
	case OpDistinctAtLeast:
		return v >= r.Value
	default:
		return false
	}
}

// Describe renders the predicate for locked-badge listings.
func (r Requirement) Describe() string {
	switch r.Op {
	case OpCountAtLeast:
		return fmt.Sprintf("%s reaches %d", r.Metric, r.Value)
	case OpBooleanFlag:
		return fmt.Sprintf("%s at least once", r.Metric)
	case OpDistinctAtLeast:
		return fmt.Sprintf("%d distinct %s", r.Value, r.Metric)
	default:
		return "unknown requirement"
	}
}

// Stats are the aggregate statistics requirements are evaluated against,
// computed from the activity log and current account state.
type Stats struct {
	FeedbackCount      int
	FiveStarCount      int
	DistinctBusinesses int
	LoginCount         int
	ReferralCount      int
	CurrentStreak      int
	Level              int
}

// Metric resolves a metric by name; false means the name is unknown.
func (s Stats) Metric(name string) (int, bool) {
	switch name {
	case MetricFeedbackCount:
		return s.FeedbackCount, true
	case MetricFiveStarCount:
		return s.FiveStarCount, true
	case MetricDistinctBusinesses:
		return s.DistinctBusinesses, true
	case MetricLoginCount:
		return s.LoginCount, true
	case MetricReferralCount:
		return s.ReferralCount, true
	case MetricCurrentStreak:
		return s.CurrentStreak, true
	case MetricLevel:
		return s.Level, true
	default:
		return 0, false
	}
}

// BadgeEngine evaluates badge requirements and grants each badge at most
// once per account. The unique index on account_badges is the mechanism
// that keeps concurrent evaluations from double-granting.
type BadgeEngine struct {
	db        *gorm.DB
	ledger    *Ledger
	analytics *Analytics
	notifier  Notifier
	logger    *zap.SugaredLogger
}

// NewBadgeEngine creates a BadgeEngine. Notifier and logger may be nil.
func NewBadgeEngine(db *gorm.DB, ledger *Ledger, analytics *Analytics, notifier Notifier, logger *zap.SugaredLogger) *BadgeEngine {
	return &BadgeEngine{db: db, ledger: ledger, analytics: analytics, notifier: notifier, logger: logger}
}

// Evaluate recomputes the account's statistics, grants every newly satisfied
// badge, and returns the badges granted by this call. Point payouts ride on
// idempotency keys, so a payout that failed after an earlier grant is
// re-issued here instead of being lost.
func (e *BadgeEngine) Evaluate(accountID uint) ([]models.Badge, error) {
	stats, err := e.StatsFor(accountID)
	if err != nil {
		return nil, err
	}

	var badges []models.Badge
	if err := e.db.Where("active = ?", true).Find(&badges).Error; err != nil {
		return nil, err
	}

	granted, err := e.grantedSet(accountID)
	if err != nil {
		return nil, err
	}

	var newly []models.Badge
	for _, badge := range badges {
		if granted[badge.ID] {
			e.healPayout(accountID, &badge)
			continue
		}
		if !RequirementOf(&badge).Satisfied(stats) {
			continue
		}

		// Insert-if-absent on the (account_id, badge_id) unique index.
		// RowsAffected == 0 means another evaluation got there first.
		grant := models.AccountBadge{AccountID: accountID, BadgeID: badge.ID, GrantedAt: time.Now()}
		res := e.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
		if res.Error != nil {
			if isDuplicateKeyError(res.Error) {
				continue
			}
			return newly, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		newly = append(newly, badge)
		e.payout(accountID, &badge)
		if e.notifier != nil {
			e.notifier.Publish(Event{
				Kind:      EventBadgeGranted,
				AccountID: accountID,
				Title:     "Badge earned",
				Message:   fmt.Sprintf("You earned the %s badge: %s", badge.Rarity, badge.Name),
				Data:      map[string]interface{}{"badge_id": badge.ID, "code": badge.Code},
			})
		}
	}
	return newly, nil
}

// StatsFor computes the aggregate statistics for one account.
func (e *BadgeEngine) StatsFor(accountID uint) (Stats, error) {
	var stats Stats

	var account models.Account
	if err := e.db.First(&account, accountID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return stats, ErrAccountNotFound
		}
		return stats, err
	}
	stats.Level = account.Level

	type row struct {
		Type  string
		Total int
	}
	var rows []row
	if err := e.db.Model(&models.Activity{}).
		Select("type, COUNT(*) AS total").
		Where("account_id = ?", accountID).
		Group("type").
		Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, r := range rows {
		switch r.Type {
		case models.ActivityFeedback:
			stats.FeedbackCount = r.Total
		case models.ActivityLogin:
			stats.LoginCount = r.Total
		case models.ActivityReferral:
			stats.ReferralCount = r.Total
		}
	}

	var fiveStar int64
	if err := e.db.Model(&models.Activity{}).
		Where("account_id = ? AND type = ? AND rating = 5", accountID, models.ActivityFeedback).
		Count(&fiveStar).Error; err != nil {
		return stats, err
	}
	stats.FiveStarCount = int(fiveStar)

	var distinct int64
	if err := e.db.Model(&models.Activity{}).
		Where("account_id = ? AND type = ? AND business_id <> 0", accountID, models.ActivityFeedback).
		Distinct("business_id").
		Count(&distinct).Error; err != nil {
		return stats, err
	}
	stats.DistinctBusinesses = int(distinct)

	streak, err := e.analytics.CurrentStreak(accountID)
	if err != nil {
		return stats, err
	}
	stats.CurrentStreak = streak

	return stats, nil
}

func (e *BadgeEngine) grantedSet(accountID uint) (map[uint]bool, error) {
	var grants []models.AccountBadge
	if err := e.db.Where("account_id = ?", accountID).Find(&grants).Error; err != nil {
		return nil, err
	}
	set := make(map[uint]bool, len(grants))
	for _, g := range grants {
		set[g.BadgeID] = true
	}
	return set, nil
}

// payout credits the grant points. A failed credit never rolls the badge
// back; the idempotency key lets a later Evaluate re-issue it.
func (e *BadgeEngine) payout(accountID uint, badge *models.Badge) {
	if badge.PointsOnGrant <= 0 {
		return
	}
	reason := fmt.Sprintf("badge:%d", badge.ID)
	_, err := e.ledger.Credit(accountID, models.LedgerKindPoints, badge.PointsOnGrant, reason, badgeIdemKey(accountID, badge.ID))
	if err != nil && e.logger != nil {
		e.logger.Warnw("badge payout failed, will retry on next evaluation",
			"account_id", accountID, "badge_id", badge.ID, "err", err)
	}
}

// healPayout re-issues the credit for an already granted badge whose payout
// entry is missing.
func (e *BadgeEngine) healPayout(accountID uint, badge *models.Badge) {
	if badge.PointsOnGrant <= 0 {
		return
	}
	key := badgeIdemKey(accountID, badge.ID)
	ok, err := e.ledger.HasEntry(key)
	if err != nil || ok {
		return
	}
	e.payout(accountID, badge)
}

func badgeIdemKey(accountID, badgeID uint) string {
	return fmt.Sprintf("badge:%d:acct:%d", badgeID, accountID)
}
