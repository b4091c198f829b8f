package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scanvoice/gamify/models"
)

func seedAnalytics(t *testing.T) (*gorm.DB, *Analytics) {
	t.Helper()
	db := setupTestDB(t)
	analytics := NewAnalytics(db)
	createAccount(t, db, 1)
	return db, analytics
}

func day(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestCurrentStreakWithGap(t *testing.T) {
	db, analytics := seedAnalytics(t)
	// Active Mon-Wed, a gap on Thursday, then Fri-Sun. "Today" is Sunday
	// 2024-02-18: the streak restarts after the gap, so current is 3 not 6.
	for _, d := range []int{12, 13, 14, 16, 17, 18} {
		addActivity(t, db, 1, models.ActivityFeedback, day(2024, 2, d, 10), 4, 1)
	}
	analytics.now = func() time.Time { return day(2024, 2, 18, 20) }

	streak, err := analytics.CurrentStreak(1)
	require.NoError(t, err)
	assert.Equal(t, 3, streak)

	max, err := analytics.MaxStreak(1)
	require.NoError(t, err)
	assert.Equal(t, 3, max)
}

func TestCurrentStreakSurvivesUntilEndOfDay(t *testing.T) {
	db, analytics := seedAnalytics(t)
	// Last activity yesterday: the streak is still alive today because the
	// account has until midnight to extend it.
	for _, d := range []int{15, 16, 17} {
		addActivity(t, db, 1, models.ActivityFeedback, day(2024, 2, d, 10), 4, 1)
	}
	analytics.now = func() time.Time { return day(2024, 2, 18, 9) }

	streak, err := analytics.CurrentStreak(1)
	require.NoError(t, err)
	assert.Equal(t, 3, streak)

	// Two days later the streak is broken.
	analytics.now = func() time.Time { return day(2024, 2, 19, 9) }
	streak, err = analytics.CurrentStreak(1)
	require.NoError(t, err)
	assert.Equal(t, 0, streak)
}

func TestCurrentStreakNoActivity(t *testing.T) {
	_, analytics := seedAnalytics(t)
	streak, err := analytics.CurrentStreak(1)
	require.NoError(t, err)
	assert.Zero(t, streak)

	_, err = analytics.CurrentStreak(999)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMaxStreakFindsOldRun(t *testing.T) {
	db, analytics := seedAnalytics(t)
	// A five-day run in January beats the recent two-day run.
	for _, d := range []int{8, 9, 10, 11, 12} {
		addActivity(t, db, 1, models.ActivityFeedback, day(2024, 1, d, 10), 4, 1)
	}
	for _, d := range []int{17, 18} {
		addActivity(t, db, 1, models.ActivityLogin, day(2024, 2, d, 10), 0, 0)
	}
	analytics.now = func() time.Time { return day(2024, 2, 18, 20) }

	max, err := analytics.MaxStreak(1)
	require.NoError(t, err)
	assert.Equal(t, 5, max)

	current, err := analytics.CurrentStreak(1)
	require.NoError(t, err)
	assert.Equal(t, 2, current)
}

func TestTrendZeroFilled(t *testing.T) {
	db, analytics := seedAnalytics(t)
	addActivity(t, db, 1, models.ActivityFeedback, day(2024, 2, 16, 10), 4, 1)
	addActivity(t, db, 1, models.ActivityFeedback, day(2024, 2, 16, 14), 5, 2)
	addActivity(t, db, 1, models.ActivityLogin, day(2024, 2, 18, 8), 0, 0)
	analytics.now = func() time.Time { return day(2024, 2, 18, 20) }

	series, err := analytics.Trend(1, 7)
	require.NoError(t, err)
	require.Len(t, series, 7, "every day appears even with zero activity")
	assert.Equal(t, "2024-02-12", series[0].Date)
	assert.Equal(t, "2024-02-18", series[6].Date)

	counts := map[string]int{}
	for _, p := range series {
		counts[p.Date] = p.Count
	}
	assert.Equal(t, 2, counts["2024-02-16"])
	assert.Equal(t, 0, counts["2024-02-17"])
	assert.Equal(t, 1, counts["2024-02-18"])
}

func TestPeakHour(t *testing.T) {
	db, analytics := seedAnalytics(t)

	hour, count, err := analytics.PeakHour(1)
	require.NoError(t, err)
	assert.Equal(t, -1, hour, "no activity means no peak")
	assert.Zero(t, count)

	addActivity(t, db, 1, models.ActivityFeedback, day(2024, 2, 16, 12), 4, 1)
	addActivity(t, db, 1, models.ActivityFeedback, day(2024, 2, 17, 12), 4, 1)
	addActivity(t, db, 1, models.ActivityFeedback, day(2024, 2, 17, 9), 4, 1)

	hour, count, err = analytics.PeakHour(1)
	require.NoError(t, err)
	assert.Equal(t, 12, hour)
	assert.Equal(t, 2, count)
}
