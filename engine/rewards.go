package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scanvoice/gamify/models"
)

const couponCodeAttempts = 5

// RewardService atomically exchanges points for catalog rewards. Remaining
// stock is derived from the redemption count inside the same transaction, so
// the counter can never drift from the rows.
type RewardService struct {
	db       *gorm.DB
	ledger   *Ledger
	notifier Notifier
}

// NewRewardService creates a RewardService. Notifier may be nil.
func NewRewardService(db *gorm.DB, ledger *Ledger, notifier Notifier) *RewardService {
	return &RewardService{db: db, ledger: ledger, notifier: notifier}
}

// Redeem exchanges pointsCost points for one unit of the reward. The balance
// check, stock check, debit and redemption insert are a single transaction;
// a failed precondition aborts before any write is visible.
func (r *RewardService) Redeem(accountID, rewardID uint) (*models.RewardRedemption, error) {
	var redemption models.RewardRedemption
	var reward models.Reward

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reward, rewardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRewardNotFound
			}
			return err
		}
		if !reward.Active {
			return ErrRewardInactive
		}

		if reward.Stock != models.UnlimitedStock {
			var redeemed int64
			if err := tx.Model(&models.RewardRedemption{}).
				Where("reward_id = ?", rewardID).
				Count(&redeemed).Error; err != nil {
				return err
			}
			if int(redeemed) >= reward.Stock {
				return ErrOutOfStock
			}
		}

		if reward.PointsCost > 0 {
			if _, err := r.ledger.DebitIn(tx, accountID, models.LedgerKindPoints, reward.PointsCost, fmt.Sprintf("redeem:%d", rewardID), ""); err != nil {
				if errors.Is(err, ErrInsufficientBalance) {
					return ErrInsufficientPoints
				}
				return err
			}
		}

		redemption = models.RewardRedemption{
			AccountID:  accountID,
			RewardID:   rewardID,
			RedeemedAt: time.Now(),
		}
		if reward.Type == models.RewardCoupon {
			return r.createWithCouponCode(tx, &redemption)
		}
		return tx.Create(&redemption).Error
	})
	if err != nil {
		return nil, err
	}

	if r.notifier != nil {
		r.notifier.Publish(Event{
			Kind:      EventRewardRedeemed,
			AccountID: accountID,
			Title:     "Reward redeemed",
			Message:   fmt.Sprintf("You redeemed %q for %d points", reward.Name, reward.PointsCost),
			Data:      map[string]interface{}{"reward_id": rewardID, "redemption_id": redemption.ID},
		})
	}
	return &redemption, nil
}

// createWithCouponCode inserts the redemption with a generated coupon code,
// retrying with a fresh code on a unique-constraint collision.
func (r *RewardService) createWithCouponCode(tx *gorm.DB, redemption *models.RewardRedemption) error {
	var lastErr error
	for i := 0; i < couponCodeAttempts; i++ {
		code := couponCode()
		redemption.Code = &code
		err := tx.Create(redemption).Error
		if err == nil {
			return nil
		}
		if !isDuplicateKeyError(err) {
			return err
		}
		redemption.ID = 0
		lastErr = err
	}
	return lastErr
}

// couponCode builds a short human-readable code from a UUID fragment.
func couponCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "GAMIFY-" + raw[:10]
}

// Remaining reports the stock left for a reward; UnlimitedStock means no
// limit applies.
func (r *RewardService) Remaining(rewardID uint) (int, error) {
	var reward models.Reward
	if err := r.db.First(&reward, rewardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrRewardNotFound
		}
		return 0, err
	}
	if reward.Stock == models.UnlimitedStock {
		return models.UnlimitedStock, nil
	}
	var redeemed int64
	if err := r.db.Model(&models.RewardRedemption{}).Where("reward_id = ?", rewardID).Count(&redeemed).Error; err != nil {
		return 0, err
	}
	remaining := reward.Stock - int(redeemed)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Catalog lists active rewards with their derived remaining stock.
func (r *RewardService) Catalog() ([]RewardListing, error) {
	var rewards []models.Reward
	if err := r.db.Where("active = ?", true).Order("points_cost").Find(&rewards).Error; err != nil {
		return nil, err
	}
	listings := make([]RewardListing, 0, len(rewards))
	for _, reward := range rewards {
		remaining, err := r.Remaining(reward.ID)
		if err != nil {
			return nil, err
		}
		listings = append(listings, RewardListing{Reward: reward, Remaining: remaining})
	}
	return listings, nil
}

// RewardListing is a catalog row with its derived remaining stock.
type RewardListing struct {
	Reward    models.Reward `json:"reward"`
	Remaining int           `json:"remaining"`
}
