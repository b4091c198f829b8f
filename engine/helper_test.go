package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scanvoice/gamify/models"
)

// setupTestDB creates an isolated in-memory SQLite database with the full
// schema. A single pooled connection keeps concurrent test goroutines on the
// same database and serializes their transactions.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.LedgerEntry{},
		&models.Activity{},
		&models.Badge{},
		&models.AccountBadge{},
		&models.Quest{},
		&models.QuestProgress{},
		&models.Reward{},
		&models.RewardRedemption{},
		&models.SpinRecord{},
	), "failed to migrate test schema")

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// createAccount inserts an account with zero balances.
func createAccount(t *testing.T, db *gorm.DB, id uint) *models.Account {
	t.Helper()
	account := models.Account{ID: id, Level: 1, Timezone: "UTC"}
	require.NoError(t, db.Create(&account).Error)
	return &account
}

// fundAccount credits starting points through the ledger so the fold
// invariant stays intact.
func fundAccount(t *testing.T, ledger *Ledger, accountID uint, points int) {
	t.Helper()
	if points <= 0 {
		return
	}
	_, err := ledger.Credit(accountID, models.LedgerKindPoints, points, "test seed", "")
	require.NoError(t, err)
}

// addActivity appends a raw activity row at the given time.
func addActivity(t *testing.T, db *gorm.DB, accountID uint, kind string, at time.Time, rating int, businessID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Activity{
		AccountID:  accountID,
		Type:       kind,
		Rating:     rating,
		BusinessID: businessID,
		OccurredAt: at,
	}).Error)
}

// requireFoldMatches asserts the cached balances equal the ledger fold.
func requireFoldMatches(t *testing.T, db *gorm.DB, ledger *Ledger, accountID uint) {
	t.Helper()
	var account models.Account
	require.NoError(t, db.First(&account, accountID).Error)
	points, xp, err := ledger.FoldBalance(accountID)
	require.NoError(t, err)
	require.Equal(t, account.Points, points, "cached points must equal ledger fold")
	require.Equal(t, account.XP, xp, "cached xp must equal ledger fold")
}
