package engine

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scanvoice/gamify/models"
)

// SpinOutcome is the server-chosen result of a daily draw. The client only
// renders it; nothing the caller sends influences the selection.
type SpinOutcome struct {
	Prize  SpinPrize `json:"prize"`
	Date   string    `json:"date"`
	Points int       `json:"points"`
	XP     int       `json:"xp"`
	Level  int       `json:"level"`
}

// SpinService runs the server-authoritative daily weighted draw.
type SpinService struct {
	db       *gorm.DB
	ledger   *Ledger
	settings Settings
	notifier Notifier
	now      func() time.Time
	randInt  func(n int) int
}

// NewSpinService creates a SpinService over the configured prize table.
func NewSpinService(db *gorm.DB, ledger *Ledger, settings Settings, notifier Notifier) *SpinService {
	return &SpinService{
		db:       db,
		ledger:   ledger,
		settings: settings,
		notifier: notifier,
		now:      time.Now,
		randInt:  cryptoRandInt,
	}
}

// Draw runs the account's daily spin. Eligibility is the insert of the
// (account_id, date) spin record: losing that insert is authoritative proof
// of an earlier spin and aborts before any prize is computed.
func (s *SpinService) Draw(accountID uint) (*SpinOutcome, error) {
	total := s.settings.TotalSpinWeight()
	if total <= 0 || len(s.settings.SpinPrizes) == 0 {
		return nil, errors.New("spin prize table is empty")
	}

	var account models.Account
	if err := s.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	localNow := s.now().In(account.Location())
	date := localNow.Format(dayFormat)

	var outcome SpinOutcome
	var leveled *LedgerResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record := models.SpinRecord{AccountID: accountID, Date: date}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			if isDuplicateKeyError(res.Error) {
				return ErrAlreadySpunToday
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySpunToday
		}

		prize := pickPrize(s.settings.SpinPrizes, s.randInt(total))
		if err := tx.Model(&models.SpinRecord{}).
			Where("id = ?", record.ID).
			Update("prize_id", prize.ID).Error; err != nil {
			return err
		}

		key := spinIdemKey(accountID, date)
		var last *LedgerResult
		if prize.Points > 0 {
			r, err := s.ledger.CreditIn(tx, accountID, models.LedgerKindPoints, prize.Points, "spin", key+":points")
			if err != nil {
				return err
			}
			last = r
		}
		if prize.XP > 0 {
			r, err := s.ledger.CreditIn(tx, accountID, models.LedgerKindXP, prize.XP, "spin", key+":xp")
			if err != nil {
				return err
			}
			last = r
		}

		spunAt := s.now()
		if err := tx.Model(&models.Account{}).
			Where("id = ?", accountID).
			Update("last_spin_at", spunAt).Error; err != nil {
			return err
		}

		outcome = SpinOutcome{Prize: prize, Date: date}
		if last != nil {
			outcome.Points = last.Points
			outcome.XP = last.XP
			outcome.Level = last.Level
			if last.LeveledUp {
				leveled = last
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.NotifyLevelUp(accountID, leveled)

	if s.notifier != nil {
		s.notifier.Publish(Event{
			Kind:      EventSpinResult,
			AccountID: accountID,
			Title:     "Daily spin",
			Message:   fmt.Sprintf("You won %s", outcome.Prize.Name),
			Data:      map[string]interface{}{"prize_id": outcome.Prize.ID, "date": date},
		})
	}
	return &outcome, nil
}

// SpinStatus reports whether the account has spun today and previews the
// prize table (names only; weights stay server-side).
type SpinStatus struct {
	SpunToday  bool       `json:"spun_today"`
	LastSpinAt *time.Time `json:"last_spin_at"`
	Prizes     []string   `json:"prizes"`
}

// Status answers the pre-spin eligibility query.
func (s *SpinService) Status(accountID uint) (*SpinStatus, error) {
	var account models.Account
	if err := s.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	date := s.now().In(account.Location()).Format(dayFormat)
	var count int64
	if err := s.db.Model(&models.SpinRecord{}).
		Where("account_id = ? AND date = ?", accountID, date).
		Count(&count).Error; err != nil {
		return nil, err
	}

	names := make([]string, 0, len(s.settings.SpinPrizes))
	for _, p := range s.settings.SpinPrizes {
		names = append(names, p.Name)
	}
	return &SpinStatus{SpunToday: count > 0, LastSpinAt: account.LastSpinAt, Prizes: names}, nil
}

// pickPrize maps a value in [0, totalWeight) onto the prize whose cumulative
// weight range contains it.
func pickPrize(prizes []SpinPrize, value int) SpinPrize {
	cumulative := 0
	for _, p := range prizes {
		cumulative += p.Weight
		if value < cumulative {
			return p
		}
	}
	return prizes[len(prizes)-1]
}

func spinIdemKey(accountID uint, date string) string {
	return fmt.Sprintf("spin:acct:%d:%s", accountID, date)
}

// cryptoRandInt returns a uniform random int in [0, n) from crypto/rand.
func cryptoRandInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failing means the platform RNG is broken; fall back
		// to the first slot rather than crash the request.
		return 0
	}
	return int(v.Int64())
}
