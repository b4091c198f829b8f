package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scanvoice/gamify/models"
)

func TestPeriodKey(t *testing.T) {
	// Wednesday 2024-02-14 sits in ISO week 7.
	at := time.Date(2024, 2, 14, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-02-14", PeriodKey(&models.Quest{Type: models.QuestDaily}, at))
	assert.Equal(t, "2024-W07", PeriodKey(&models.Quest{Type: models.QuestWeekly}, at))
	assert.Equal(t, "2024-02", PeriodKey(&models.Quest{Type: models.QuestMonthly}, at))
	assert.Equal(t, "special:9", PeriodKey(&models.Quest{ID: 9, Type: models.QuestSpecial}, at))

	// New Year's Eve 2024 belongs to ISO week 1 of 2025.
	nye := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-W01", PeriodKey(&models.Quest{Type: models.QuestWeekly}, nye))
}

func seedQuestTracker(t *testing.T) (*gorm.DB, *Ledger, *QuestTracker) {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewLedger(db, nil)
	tracker := NewQuestTracker(db, ledger, nil, nil)
	createAccount(t, db, 1)
	return db, ledger, tracker
}

func TestRecordProgressClampsToTarget(t *testing.T) {
	db, _, tracker := seedQuestTracker(t)
	require.NoError(t, db.Create(&models.Quest{
		ID: 1, Title: "Daily voice", Type: models.QuestDaily, Metric: MetricFeedbackCount,
		Target: 3, RewardPoints: 30, RewardXP: 60, Active: true,
	}).Error)

	progress, err := tracker.RecordProgress(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Progress)
	assert.Nil(t, progress.CompletedAt)

	// Overshooting clamps at the target instead of running past it.
	progress, err = tracker.RecordProgress(1, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Progress)
	assert.NotNil(t, progress.CompletedAt)
}

func TestCompletionPaysExactlyOnce(t *testing.T) {
	db, ledger, tracker := seedQuestTracker(t)
	require.NoError(t, db.Create(&models.Quest{
		ID: 1, Title: "Daily voice", Type: models.QuestDaily, Metric: MetricFeedbackCount,
		Target: 2, RewardPoints: 30, RewardXP: 60, Active: true,
	}).Error)

	_, err := tracker.RecordProgress(1, 1, 1)
	require.NoError(t, err)
	_, err = tracker.RecordProgress(1, 1, 1)
	require.NoError(t, err)

	// Further increments after completion are no-ops.
	progress, err := tracker.RecordProgress(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Progress)
	assert.NotNil(t, progress.CompletedAt)

	var account models.Account
	require.NoError(t, db.First(&account, 1).Error)
	assert.Equal(t, 30, account.Points)
	assert.Equal(t, 60, account.XP)

	var payouts int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).
		Where("account_id = ? AND reason = ?", 1, "quest:1").
		Count(&payouts).Error)
	assert.EqualValues(t, 2, payouts, "one points entry and one xp entry")
	requireFoldMatches(t, db, ledger, 1)
}

func TestRecordProgressHealsLostPayout(t *testing.T) {
	db, ledger, tracker := seedQuestTracker(t)
	require.NoError(t, db.Create(&models.Quest{
		ID: 1, Title: "Daily voice", Type: models.QuestDaily, Metric: MetricFeedbackCount,
		Target: 2, RewardPoints: 30, RewardXP: 60, Active: true,
	}).Error)

	at := time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return at }

	// Simulate a completion whose payout was lost before it landed: the
	// progress row is completed but no ledger entry carries its keys.
	completedAt := at
	require.NoError(t, db.Create(&models.QuestProgress{
		AccountID: 1, QuestID: 1, PeriodKey: "2024-02-14",
		Progress: 2, CompletedAt: &completedAt,
	}).Error)

	progress, err := tracker.RecordProgress(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Progress, "completed counters never move again")

	var account models.Account
	require.NoError(t, db.First(&account, 1).Error)
	assert.Equal(t, 30, account.Points, "the lost payout is re-issued")
	assert.Equal(t, 60, account.XP)

	// Later increments find the entries and do not pay again.
	_, err = tracker.RecordProgress(1, 1, 1)
	require.NoError(t, err)
	require.NoError(t, db.First(&account, 1).Error)
	assert.Equal(t, 30, account.Points)
	assert.Equal(t, 60, account.XP)
	requireFoldMatches(t, db, ledger, 1)
}

func TestRecordProgressNewPeriodStartsFresh(t *testing.T) {
	db, _, tracker := seedQuestTracker(t)
	require.NoError(t, db.Create(&models.Quest{
		ID: 1, Title: "Daily voice", Type: models.QuestDaily, Metric: MetricFeedbackCount,
		Target: 3, RewardPoints: 30, Active: true,
	}).Error)

	day1 := time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return day1 }
	progress, err := tracker.RecordProgress(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-14", progress.PeriodKey)
	assert.Equal(t, 2, progress.Progress)

	tracker.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	progress, err = tracker.RecordProgress(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-15", progress.PeriodKey)
	assert.Equal(t, 1, progress.Progress, "a new period starts from zero")

	// The old period's row stays untouched.
	var old models.QuestProgress
	require.NoError(t, db.Where("quest_id = ? AND period_key = ?", 1, "2024-02-14").First(&old).Error)
	assert.Equal(t, 2, old.Progress)
}

func TestRecordProgressSpecialQuestExpiry(t *testing.T) {
	db, _, tracker := seedQuestTracker(t)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&models.Quest{
		ID: 1, Title: "Launch week", Type: models.QuestSpecial, Metric: MetricFeedbackCount,
		Target: 5, RewardPoints: 100, ExpiresAt: &past, Active: true,
	}).Error)

	_, err := tracker.RecordProgress(1, 1, 1)
	assert.ErrorIs(t, err, ErrQuestExpired)

	var count int64
	require.NoError(t, db.Model(&models.QuestProgress{}).Count(&count).Error)
	assert.Zero(t, count, "expired quests record no progress")
}

func TestRecordProgressUnknownOrInactiveQuest(t *testing.T) {
	db, _, tracker := seedQuestTracker(t)

	_, err := tracker.RecordProgress(1, 42, 1)
	assert.ErrorIs(t, err, ErrQuestNotFound)

	require.NoError(t, db.Create(&models.Quest{
		ID: 2, Title: "Retired", Type: models.QuestDaily, Metric: MetricFeedbackCount,
		Target: 1, Active: false,
	}).Error)
	_, err = tracker.RecordProgress(1, 2, 1)
	assert.ErrorIs(t, err, ErrQuestNotFound)

	_, err = tracker.RecordProgress(1, 42, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAdvanceMetric(t *testing.T) {
	db, _, tracker := seedQuestTracker(t)
	require.NoError(t, db.Create(&models.Quest{
		ID: 1, Title: "Daily voice", Type: models.QuestDaily, Metric: MetricFeedbackCount,
		Target: 3, Active: true,
	}).Error)
	require.NoError(t, db.Create(&models.Quest{
		ID: 2, Title: "Weekly voice", Type: models.QuestWeekly, Metric: MetricFeedbackCount,
		Target: 10, Active: true,
	}).Error)
	require.NoError(t, db.Create(&models.Quest{
		ID: 3, Title: "Recruiter", Type: models.QuestWeekly, Metric: MetricReferralCount,
		Target: 2, Active: true,
	}).Error)

	require.NoError(t, tracker.AdvanceMetric(1, MetricFeedbackCount, 1))

	var rows []models.QuestProgress
	require.NoError(t, db.Order("quest_id").Find(&rows).Error)
	require.Len(t, rows, 2, "only quests tracking the metric advance")
	assert.EqualValues(t, 1, rows[0].QuestID)
	assert.EqualValues(t, 2, rows[1].QuestID)
}

func TestProgressFor(t *testing.T) {
	db, _, tracker := seedQuestTracker(t)
	require.NoError(t, db.Create(&models.Quest{
		ID: 1, Title: "Daily voice", Type: models.QuestDaily, Metric: MetricFeedbackCount,
		Target: 3, Active: true,
	}).Error)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&models.Quest{
		ID: 2, Title: "Launch week", Type: models.QuestSpecial, Metric: MetricFeedbackCount,
		Target: 5, ExpiresAt: &past, Active: true,
	}).Error)

	_, err := tracker.RecordProgress(1, 1, 2)
	require.NoError(t, err)

	statuses, err := tracker.ProgressFor(1)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, 2, statuses[0].Progress)
	assert.False(t, statuses[0].Expired)
	assert.Equal(t, 0, statuses[1].Progress, "untouched quests report zero")
	assert.True(t, statuses[1].Expired)
}
