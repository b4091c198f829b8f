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

// QuestTracker maintains per-account, per-quest, per-period progress
// counters, detects completion and pays out through the Ledger.
type QuestTracker struct {
	db       *gorm.DB
	ledger   *Ledger
	notifier Notifier
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewQuestTracker creates a QuestTracker. Notifier and logger may be nil.
func NewQuestTracker(db *gorm.DB, ledger *Ledger, notifier Notifier, logger *zap.SugaredLogger) *QuestTracker {
	return &QuestTracker{db: db, ledger: ledger, notifier: notifier, logger: logger, now: time.Now}
}

// PeriodKey resolves the current scoring window for a quest type at the
// given local time: daily = calendar day, weekly = ISO week, monthly =
// calendar month, special = the quest's fixed window.
func PeriodKey(quest *models.Quest, at time.Time) string {
	switch quest.Type {
	case models.QuestDaily:
		return at.Format("2006-01-02")
	case models.QuestWeekly:
		year, week := at.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case models.QuestMonthly:
		return at.Format("2006-01")
	case models.QuestSpecial:
		return fmt.Sprintf("special:%d", quest.ID)
	default:
		return at.Format("2006-01-02")
	}
}

// RecordProgress increments the account's counter for the quest's current
// period, clamped to the target. The first increment that reaches the target
// flips completed_at exactly once and pays out the quest reward; racing
// increments settle on the compare-and-set, not on who observed the
// transition.
func (q *QuestTracker) RecordProgress(accountID, questID uint, incrementBy int) (*models.QuestProgress, error) {
	if incrementBy <= 0 {
		return nil, ErrInvalidAmount
	}

	var quest models.Quest
	if err := q.db.First(&quest, questID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	if !quest.Active {
		return nil, ErrQuestNotFound
	}

	var account models.Account
	if err := q.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	now := q.now().In(account.Location())
	if quest.Type == models.QuestSpecial && quest.ExpiresAt != nil && now.After(*quest.ExpiresAt) {
		return nil, ErrQuestExpired
	}

	periodKey := PeriodKey(&quest, now)

	var progress models.QuestProgress
	completedNow := false
	completedEarlier := false
	err := q.db.Transaction(func(tx *gorm.DB) error {
		// Insert-if-absent so a fresh period starts at zero without racing
		// a concurrent first increment.
		seed := models.QuestProgress{AccountID: accountID, QuestID: questID, PeriodKey: periodKey}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil && !isDuplicateKeyError(err) {
			return err
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ? AND quest_id = ? AND period_key = ?", accountID, questID, periodKey).
			First(&progress).Error; err != nil {
			return err
		}

		if progress.CompletedAt != nil {
			completedEarlier = true
			return nil
		}

		next := progress.Progress + incrementBy
		if next > quest.Target {
			next = quest.Target
		}
		progress.Progress = next

		if err := tx.Model(&models.QuestProgress{}).
			Where("id = ?", progress.ID).
			Updates(map[string]interface{}{"progress": next, "updated_at": time.Now()}).Error; err != nil {
			return err
		}

		if next >= quest.Target {
			// Compare-and-set: only the call that flips completed_at from
			// NULL owns the completion and its payout.
			completedAt := time.Now()
			res := tx.Model(&models.QuestProgress{}).
				Where("id = ? AND completed_at IS NULL", progress.ID).
				Update("completed_at", completedAt)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				completedNow = true
				progress.CompletedAt = &completedAt
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completedEarlier {
		// The completion stood but its payout may have been lost; the
		// idempotency keys make re-issuing safe.
		q.healPayout(accountID, &quest, periodKey)
	}
	if completedNow {
		q.payout(accountID, &quest, periodKey)
		if q.notifier != nil {
			q.notifier.Publish(Event{
				Kind:      EventQuestCompleted,
				AccountID: accountID,
				Title:     "Quest completed",
				Message:   fmt.Sprintf("You completed %q", quest.Title),
				Data:      map[string]interface{}{"quest_id": quest.ID, "period_key": periodKey},
			})
		}
	}
	return &progress, nil
}

// AdvanceMetric records progress on every active quest tracking the given
// metric. The intake calls this once per activity event.
func (q *QuestTracker) AdvanceMetric(accountID uint, metric string, incrementBy int) error {
	var quests []models.Quest
	if err := q.db.Where("active = ? AND metric = ?", true, metric).Find(&quests).Error; err != nil {
		return err
	}
	for _, quest := range quests {
		if _, err := q.RecordProgress(accountID, quest.ID, incrementBy); err != nil {
			if errors.Is(err, ErrQuestExpired) {
				continue
			}
			return err
		}
	}
	return nil
}

// ProgressFor lists the account's current-period progress on every active
// quest, including quests not yet started this period.
func (q *QuestTracker) ProgressFor(accountID uint) ([]QuestStatus, error) {
	var account models.Account
	if err := q.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	now := q.now().In(account.Location())

	var quests []models.Quest
	if err := q.db.Where("active = ?", true).Order("id").Find(&quests).Error; err != nil {
		return nil, err
	}

	statuses := make([]QuestStatus, 0, len(quests))
	for _, quest := range quests {
		st := QuestStatus{Quest: quest, PeriodKey: PeriodKey(&quest, now)}
		if quest.Type == models.QuestSpecial && quest.ExpiresAt != nil && now.After(*quest.ExpiresAt) {
			st.Expired = true
		}
		var progress models.QuestProgress
		err := q.db.Where("account_id = ? AND quest_id = ? AND period_key = ?", accountID, quest.ID, st.PeriodKey).
			First(&progress).Error
		if err == nil {
			st.Progress = progress.Progress
			st.CompletedAt = progress.CompletedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// QuestStatus is one quest with the account's current-period progress.
type QuestStatus struct {
	Quest       models.Quest `json:"quest"`
	PeriodKey   string       `json:"period_key"`
	Progress    int          `json:"progress"`
	CompletedAt *time.Time   `json:"completed_at"`
	Expired     bool         `json:"expired"`
}

// payout credits the quest reward. The completion record stands even when a
// credit fails; the idempotency key makes the retry safe.
func (q *QuestTracker) payout(accountID uint, quest *models.Quest, periodKey string) {
	key := questIdemKey(accountID, quest.ID, periodKey)
	reason := fmt.Sprintf("quest:%d", quest.ID)
	if quest.RewardPoints > 0 {
		if _, err := q.ledger.Credit(accountID, models.LedgerKindPoints, quest.RewardPoints, reason, key+":points"); err != nil && q.logger != nil {
			q.logger.Warnw("quest points payout failed",
				"account_id", accountID, "quest_id", quest.ID, "period_key", periodKey, "err", err)
		}
	}
	if quest.RewardXP > 0 {
		if _, err := q.ledger.Credit(accountID, models.LedgerKindXP, quest.RewardXP, reason, key+":xp"); err != nil && q.logger != nil {
			q.logger.Warnw("quest xp payout failed",
				"account_id", accountID, "quest_id", quest.ID, "period_key", periodKey, "err", err)
		}
	}
}

// healPayout re-issues the reward for a completed period whose credit entries
// are missing, the quest counterpart of the badge engine's payout healing.
func (q *QuestTracker) healPayout(accountID uint, quest *models.Quest, periodKey string) {
	key := questIdemKey(accountID, quest.ID, periodKey)
	if quest.RewardPoints > 0 {
		if ok, err := q.ledger.HasEntry(key + ":points"); err == nil && !ok {
			q.payout(accountID, quest, periodKey)
			return
		}
	}
	if quest.RewardXP > 0 {
		if ok, err := q.ledger.HasEntry(key + ":xp"); err == nil && !ok {
			q.payout(accountID, quest, periodKey)
		}
	}
}

func questIdemKey(accountID, questID uint, periodKey string) string {
	return fmt.Sprintf("quest:%d:acct:%d:%s", questID, accountID, periodKey)
}
