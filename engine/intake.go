package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scanvoice/gamify/models"
)

// Intake routes raw activity events into the engine: it appends the activity
// row, credits the configured base points and XP, advances matching quests
// and triggers badge evaluation.
type Intake struct {
	db       *gorm.DB
	ledger   *Ledger
	badges   *BadgeEngine
	quests   *QuestTracker
	settings Settings
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewIntake wires the intake over the engine services. Logger may be nil.
func NewIntake(db *gorm.DB, ledger *Ledger, badges *BadgeEngine, quests *QuestTracker, settings Settings, logger *zap.SugaredLogger) *Intake {
	return &Intake{db: db, ledger: ledger, badges: badges, quests: quests, settings: settings, logger: logger, now: time.Now}
}

// EnsureAccount creates the account with zero balances if it does not exist
// yet. Called at user registration; safe to repeat.
func (i *Intake) EnsureAccount(accountID uint, timezone string) (*models.Account, error) {
	seed := models.Account{ID: accountID, Level: 1, Timezone: timezone}
	if err := i.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil && !isDuplicateKeyError(err) {
		return nil, err
	}
	var account models.Account
	if err := i.db.First(&account, accountID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// RecordFeedback processes a feedback_submitted event. A five-star rating
// earns the configured bonus on top of the base points. idemKey is the
// caller's retry token; empty disables idempotency for this credit.
func (i *Intake) RecordFeedback(accountID uint, rating, textLength int, businessID uint, at time.Time, idemKey string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating %d out of range", ErrInvalidAmount, rating)
	}
	if at.IsZero() {
		at = i.now()
	}

	// A retried event must not re-run any of the fan-out: the credit's
	// idempotency key doubles as the seen-before marker for the whole event.
	if seen, err := i.seenEvent(idemKey); err != nil {
		return err
	} else if seen {
		return nil
	}

	if err := i.appendActivity(models.Activity{
		AccountID:  accountID,
		Type:       models.ActivityFeedback,
		Rating:     rating,
		TextLength: textLength,
		BusinessID: businessID,
		OccurredAt: at,
	}); err != nil {
		return err
	}

	points := i.settings.FeedbackPoints
	if rating == 5 {
		points += i.settings.FiveStarBonus
	}
	if points > 0 {
		if _, err := i.ledger.Credit(accountID, models.LedgerKindPoints, points, "feedback", idemKey); err != nil {
			return err
		}
	}
	if i.settings.FeedbackXP > 0 {
		xpKey := ""
		if idemKey != "" {
			xpKey = idemKey + ":xp"
		}
		if _, err := i.ledger.Credit(accountID, models.LedgerKindXP, i.settings.FeedbackXP, "feedback", xpKey); err != nil {
			return err
		}
	}

	i.advance(accountID, MetricFeedbackCount, 1)
	if rating == 5 {
		i.advance(accountID, MetricFiveStarCount, 1)
	}
	i.evaluateBadges(accountID)
	return nil
}

// RecordLogin processes a login event. Only the first login of a local
// calendar day earns the reward; later logins the same day are no-ops.
func (i *Intake) RecordLogin(accountID uint, at time.Time) error {
	var account models.Account
	if err := i.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if at.IsZero() {
		at = i.now()
	}

	loc := account.Location()
	local := at.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	date := local.Format(dayFormat)

	var already int64
	if err := i.db.Model(&models.Activity{}).
		Where("account_id = ? AND type = ? AND occurred_at >= ? AND occurred_at < ?",
			accountID, models.ActivityLogin, dayStart, dayStart.AddDate(0, 0, 1)).
		Count(&already).Error; err != nil {
		return err
	}
	if already > 0 {
		return nil
	}

	if err := i.appendActivity(models.Activity{
		AccountID:  accountID,
		Type:       models.ActivityLogin,
		OccurredAt: at,
	}); err != nil {
		return err
	}

	key := fmt.Sprintf("login:acct:%d:%s", accountID, date)
	if i.settings.LoginPoints > 0 {
		if _, err := i.ledger.Credit(accountID, models.LedgerKindPoints, i.settings.LoginPoints, "login", key+":points"); err != nil {
			return err
		}
	}
	if i.settings.LoginXP > 0 {
		if _, err := i.ledger.Credit(accountID, models.LedgerKindXP, i.settings.LoginXP, "login", key+":xp"); err != nil {
			return err
		}
	}

	i.advance(accountID, MetricLoginCount, 1)
	i.evaluateBadges(accountID)
	return nil
}

// RecordReferral processes a referral event.
func (i *Intake) RecordReferral(accountID uint, at time.Time, idemKey string) error {
	if at.IsZero() {
		at = i.now()
	}
	if seen, err := i.seenEvent(idemKey); err != nil {
		return err
	} else if seen {
		return nil
	}
	if err := i.appendActivity(models.Activity{
		AccountID:  accountID,
		Type:       models.ActivityReferral,
		OccurredAt: at,
	}); err != nil {
		return err
	}

	if i.settings.ReferralPoints > 0 {
		if _, err := i.ledger.Credit(accountID, models.LedgerKindPoints, i.settings.ReferralPoints, "referral", idemKey); err != nil {
			return err
		}
	}
	if i.settings.ReferralXP > 0 {
		xpKey := ""
		if idemKey != "" {
			xpKey = idemKey + ":xp"
		}
		if _, err := i.ledger.Credit(accountID, models.LedgerKindXP, i.settings.ReferralXP, "referral", xpKey); err != nil {
			return err
		}
	}

	i.advance(accountID, MetricReferralCount, 1)
	i.evaluateBadges(accountID)
	return nil
}

// seenEvent reports whether an event with this idempotency key was already
// processed. The points credit carries the bare key; when the event pays no
// points the ":xp" variant is the marker instead.
func (i *Intake) seenEvent(idemKey string) (bool, error) {
	if idemKey == "" {
		return false, nil
	}
	ok, err := i.ledger.HasEntry(idemKey)
	if err != nil || ok {
		return ok, err
	}
	return i.ledger.HasEntry(idemKey + ":xp")
}

func (i *Intake) appendActivity(activity models.Activity) error {
	// The activity row requires an existing account; a foreign event for an
	// unknown account is a caller bug surfaced as a named failure.
	var exists int64
	if err := i.db.Model(&models.Account{}).Where("id = ?", activity.AccountID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return ErrAccountNotFound
	}
	return i.db.Create(&activity).Error
}

// advance and evaluateBadges are downstream effects of an already recorded
// event: their failures are logged and retried on later events rather than
// failing the intake call.
func (i *Intake) advance(accountID uint, metric string, by int) {
	if err := i.quests.AdvanceMetric(accountID, metric, by); err != nil && i.logger != nil {
		i.logger.Warnw("quest progress failed", "account_id", accountID, "metric", metric, "err", err)
	}
}

func (i *Intake) evaluateBadges(accountID uint) {
	if _, err := i.badges.Evaluate(accountID); err != nil && i.logger != nil {
		i.logger.Warnw("badge evaluation failed", "account_id", accountID, "err", err)
	}
}
