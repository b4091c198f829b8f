package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scanvoice/gamify/models"
)

func seedLeaderboard(t *testing.T) (*gorm.DB, *Ledger, *Leaderboard) {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewLedger(db, nil)
	board := NewLeaderboard(db, nil)
	return db, ledger, board
}

func TestRankOrdersAndBreaksTies(t *testing.T) {
	db, ledger, board := seedLeaderboard(t)
	for id := uint(1); id <= 4; id++ {
		createAccount(t, db, id)
	}
	fundAccount(t, ledger, 1, 50)
	fundAccount(t, ledger, 2, 120)
	fundAccount(t, ledger, 3, 50)
	fundAccount(t, ledger, 4, 80)

	rows, err := board.Rank(PeriodAllTime, 10)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.EqualValues(t, 2, rows[0].AccountID)
	assert.EqualValues(t, 4, rows[1].AccountID)
	// Equal totals: the lower account id ranks first, deterministically.
	assert.EqualValues(t, 1, rows[2].AccountID)
	assert.EqualValues(t, 3, rows[3].AccountID)
	assert.Equal(t, []int{1, 2, 3, 4}, []int{rows[0].Rank, rows[1].Rank, rows[2].Rank, rows[3].Rank})
}

func TestRankCountsEarningsNotBalance(t *testing.T) {
	db, ledger, board := seedLeaderboard(t)
	createAccount(t, db, 1)
	createAccount(t, db, 2)
	fundAccount(t, ledger, 1, 100)
	fundAccount(t, ledger, 2, 90)

	// Account 1 spends most of its points; its leaderboard credit stands.
	_, err := ledger.Debit(1, models.LedgerKindPoints, 60, "redeem", "")
	require.NoError(t, err)

	rows, err := board.Rank(PeriodAllTime, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0].AccountID)
	assert.Equal(t, 100, rows[0].Points)
}

func TestRankHonorsLimit(t *testing.T) {
	db, ledger, board := seedLeaderboard(t)
	for id := uint(1); id <= 5; id++ {
		createAccount(t, db, id)
		fundAccount(t, ledger, id, int(id)*10)
	}

	rows, err := board.Rank(PeriodAllTime, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.EqualValues(t, 5, rows[0].AccountID)
}

func TestRankWeeklyWindowExcludesOldEntries(t *testing.T) {
	db, ledger, board := seedLeaderboard(t)
	createAccount(t, db, 1)
	createAccount(t, db, 2)
	fundAccount(t, ledger, 1, 30)
	fundAccount(t, ledger, 2, 10)

	// An entry well outside any weekly window only counts for all-time.
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, db.Create(&models.LedgerEntry{
		AccountID: 2, Delta: 500, Kind: models.LedgerKindPoints, Reason: "seed", CreatedAt: old,
	}).Error)

	weekly, err := board.Rank(PeriodWeekly, 10)
	require.NoError(t, err)
	require.Len(t, weekly, 2)
	assert.EqualValues(t, 1, weekly[0].AccountID, "old earnings do not count this week")
	assert.Equal(t, 30, weekly[0].Points)

	alltime, err := board.Rank(PeriodAllTime, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, alltime[0].AccountID)
	assert.Equal(t, 510, alltime[0].Points)
}

func TestRankOf(t *testing.T) {
	db, ledger, board := seedLeaderboard(t)
	for id := uint(1); id <= 4; id++ {
		createAccount(t, db, id)
	}
	fundAccount(t, ledger, 1, 50)
	fundAccount(t, ledger, 2, 120)
	fundAccount(t, ledger, 3, 50)
	fundAccount(t, ledger, 4, 80)

	rank, points, err := board.RankOf(3, PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, 4, rank, "ties ahead include the lower-id account with equal points")
	assert.Equal(t, 50, points)

	rank, points, err = board.RankOf(2, PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
	assert.Equal(t, 120, points)

	// No earnings in the period means unranked.
	createAccount(t, db, 9)
	rank, points, err = board.RankOf(9, PeriodAllTime)
	require.NoError(t, err)
	assert.Zero(t, rank)
	assert.Zero(t, points)
}

func TestValidPeriod(t *testing.T) {
	assert.True(t, ValidPeriod(PeriodWeekly))
	assert.True(t, ValidPeriod(PeriodMonthly))
	assert.True(t, ValidPeriod(PeriodAllTime))
	assert.False(t, ValidPeriod("daily"))
	assert.False(t, ValidPeriod(""))
}
