package engine

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scanvoice/gamify/models"
)

func seedRewardService(t *testing.T) (*gorm.DB, *Ledger, *RewardService) {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewLedger(db, nil)
	service := NewRewardService(db, ledger, nil)
	return db, ledger, service
}

func TestRedeemInsufficientPoints(t *testing.T) {
	db, ledger, service := seedRewardService(t)
	createAccount(t, db, 1)
	fundAccount(t, ledger, 1, 40)
	require.NoError(t, db.Create(&models.Reward{
		ID: 1, Name: "Free coffee", Type: models.RewardCoupon, PointsCost: 50,
		Stock: models.UnlimitedStock, Active: true,
	}).Error)

	_, err := service.Redeem(1, 1)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	var account models.Account
	require.NoError(t, db.First(&account, 1).Error)
	assert.Equal(t, 40, account.Points, "a failed redemption must not touch the balance")

	var redemptions int64
	require.NoError(t, db.Model(&models.RewardRedemption{}).Count(&redemptions).Error)
	assert.Zero(t, redemptions)
	requireFoldMatches(t, db, ledger, 1)
}

func TestRedeemSuccess(t *testing.T) {
	db, ledger, service := seedRewardService(t)
	createAccount(t, db, 1)
	fundAccount(t, ledger, 1, 100)
	require.NoError(t, db.Create(&models.Reward{
		ID: 1, Name: "Free coffee", Type: models.RewardCoupon, PointsCost: 50,
		Stock: models.UnlimitedStock, Active: true,
	}).Error)

	redemption, err := service.Redeem(1, 1)
	require.NoError(t, err)
	require.NotNil(t, redemption.Code, "coupon rewards carry a code")
	assert.True(t, strings.HasPrefix(*redemption.Code, "GAMIFY-"))

	var account models.Account
	require.NoError(t, db.First(&account, 1).Error)
	assert.Equal(t, 50, account.Points)
	requireFoldMatches(t, db, ledger, 1)
}

func TestRedeemPhysicalHasNoCode(t *testing.T) {
	db, ledger, service := seedRewardService(t)
	createAccount(t, db, 1)
	fundAccount(t, ledger, 1, 100)
	require.NoError(t, db.Create(&models.Reward{
		ID: 1, Name: "Sticker pack", Type: models.RewardPhysical, PointsCost: 30,
		Stock: 10, Active: true,
	}).Error)

	redemption, err := service.Redeem(1, 1)
	require.NoError(t, err)
	assert.Nil(t, redemption.Code)
}

func TestRedeemInactiveOrMissingReward(t *testing.T) {
	db, ledger, service := seedRewardService(t)
	createAccount(t, db, 1)
	fundAccount(t, ledger, 1, 100)

	_, err := service.Redeem(1, 42)
	assert.ErrorIs(t, err, ErrRewardNotFound)

	require.NoError(t, db.Create(&models.Reward{
		ID: 2, Name: "Retired", Type: models.RewardDigital, PointsCost: 10,
		Stock: models.UnlimitedStock, Active: false,
	}).Error)
	_, err = service.Redeem(1, 2)
	assert.ErrorIs(t, err, ErrRewardInactive)
}

func TestRedeemOutOfStock(t *testing.T) {
	db, ledger, service := seedRewardService(t)
	require.NoError(t, db.Create(&models.Reward{
		ID: 1, Name: "VIP pass", Type: models.RewardVIP, PointsCost: 10,
		Stock: 2, Active: true,
	}).Error)
	for id := uint(1); id <= 3; id++ {
		createAccount(t, db, id)
		fundAccount(t, ledger, id, 50)
	}

	_, err := service.Redeem(1, 1)
	require.NoError(t, err)
	_, err = service.Redeem(2, 1)
	require.NoError(t, err)
	_, err = service.Redeem(3, 1)
	assert.ErrorIs(t, err, ErrOutOfStock)

	remaining, err := service.Remaining(1)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	// The rejected account keeps its points.
	var account models.Account
	require.NoError(t, db.First(&account, 3).Error)
	assert.Equal(t, 50, account.Points)
}

func TestConcurrentRedeemNeverOversells(t *testing.T) {
	db, ledger, service := seedRewardService(t)
	const stock = 3
	const buyers = 6
	require.NoError(t, db.Create(&models.Reward{
		ID: 1, Name: "VIP pass", Type: models.RewardVIP, PointsCost: 10,
		Stock: stock, Active: true,
	}).Error)
	for id := uint(1); id <= buyers; id++ {
		createAccount(t, db, id)
		fundAccount(t, ledger, id, 50)
	}

	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for id := uint(1); id <= buyers; id++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := service.Redeem(id, 1)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrOutOfStock)
		}
	}
	assert.Equal(t, stock, successes)

	var redemptions int64
	require.NoError(t, db.Model(&models.RewardRedemption{}).Where("reward_id = ?", 1).Count(&redemptions).Error)
	assert.EqualValues(t, stock, redemptions, "redemption rows can never exceed stock")
}

func TestRemainingUnlimited(t *testing.T) {
	db, _, service := seedRewardService(t)
	require.NoError(t, db.Create(&models.Reward{
		ID: 1, Name: "Wallpaper", Type: models.RewardDigital, PointsCost: 5,
		Stock: models.UnlimitedStock, Active: true,
	}).Error)

	remaining, err := service.Remaining(1)
	require.NoError(t, err)
	assert.Equal(t, models.UnlimitedStock, remaining)
}

func TestCatalogListsActiveWithDerivedStock(t *testing.T) {
	db, ledger, service := seedRewardService(t)
	createAccount(t, db, 1)
	fundAccount(t, ledger, 1, 100)
	require.NoError(t, db.Create(&models.Reward{
		ID: 1, Name: "Free coffee", Type: models.RewardCoupon, PointsCost: 50, Stock: 5, Active: true,
	}).Error)
	require.NoError(t, db.Create(&models.Reward{
		ID: 2, Name: "Sticker pack", Type: models.RewardPhysical, PointsCost: 30, Stock: 10, Active: false,
	}).Error)

	_, err := service.Redeem(1, 1)
	require.NoError(t, err)

	listings, err := service.Catalog()
	require.NoError(t, err)
	require.Len(t, listings, 1, "inactive rewards stay hidden")
	assert.EqualValues(t, 1, listings[0].Reward.ID)
	assert.Equal(t, 4, listings[0].Remaining)
}
