package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scanvoice/gamify/models"
)

// XPPerLevel is the fixed amount of experience per level step.
const XPPerLevel = 1000

// LevelForXP computes the level for a given experience total:
// floor(xp/1000)+1, so 0 XP is level 1 and 1000 XP is level 2.
func LevelForXP(xp int) int {
	if xp < 0 {
		return 1
	}
	return xp/XPPerLevel + 1
}

// LedgerResult reports the outcome of a credit or debit.
type LedgerResult struct {
	Entry     *models.LedgerEntry
	Points    int
	XP        int
	Level     int
	LeveledUp bool
	// Duplicate is true when the idempotency key was seen before and the
	// call was absorbed as a no-op success.
	Duplicate bool
}

// Ledger is the single mutation path for account balances. Every change
// appends a LedgerEntry; balances on the account row are a cache of the
// entry fold.
type Ledger struct {
	db       *gorm.DB
	notifier Notifier
}

// NewLedger creates a Ledger. The notifier may be nil.
func NewLedger(db *gorm.DB, notifier Notifier) *Ledger {
	return &Ledger{db: db, notifier: notifier}
}

// Credit adds amount to the account's balance of the given kind in one
// transaction. A non-empty idemKey makes retries safe: a repeated key
// returns the original entry without a second credit.
func (l *Ledger) Credit(accountID uint, kind string, amount int, reason, idemKey string) (*LedgerResult, error) {
	var res *LedgerResult
	err := l.db.Transaction(func(tx *gorm.DB) error {
		r, err := l.apply(tx, accountID, kind, amount, reason, idemKey)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.NotifyLevelUp(accountID, res)
	return res, nil
}

// Debit removes amount from the account's balance of the given kind. The
// whole call fails with ErrInsufficientBalance when the post-debit balance
// would go negative; nothing is written in that case.
func (l *Ledger) Debit(accountID uint, kind string, amount int, reason, idemKey string) (*LedgerResult, error) {
	var res *LedgerResult
	err := l.db.Transaction(func(tx *gorm.DB) error {
		r, err := l.apply(tx, accountID, kind, -amount, reason, idemKey)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreditIn applies a credit inside an existing transaction so callers can
// compose the payout with their own writes. The caller is responsible for
// invoking NotifyLevelUp after its transaction commits.
func (l *Ledger) CreditIn(tx *gorm.DB, accountID uint, kind string, amount int, reason, idemKey string) (*LedgerResult, error) {
	return l.apply(tx, accountID, kind, amount, reason, idemKey)
}

// DebitIn applies a debit inside an existing transaction.
func (l *Ledger) DebitIn(tx *gorm.DB, accountID uint, kind string, amount int, reason, idemKey string) (*LedgerResult, error) {
	return l.apply(tx, accountID, kind, -amount, reason, idemKey)
}

// NotifyLevelUp emits the level_up event for a committed result.
func (l *Ledger) NotifyLevelUp(accountID uint, res *LedgerResult) {
	if l.notifier == nil || res == nil || !res.LeveledUp {
		return
	}
	l.notifier.Publish(Event{
		Kind:      EventLevelUp,
		AccountID: accountID,
		Title:     "Level up!",
		Message:   fmt.Sprintf("You reached level %d", res.Level),
	})
}

func (l *Ledger) apply(tx *gorm.DB, accountID uint, kind string, delta int, reason, idemKey string) (*LedgerResult, error) {
	if kind != models.LedgerKindPoints && kind != models.LedgerKindXP {
		return nil, ErrInvalidKind
	}
	if delta == 0 {
		return nil, ErrInvalidAmount
	}

	// A repeated idempotency key is a no-op success: return the entry the
	// first call wrote.
	if idemKey != "" {
		var prior models.LedgerEntry
		if err := tx.Where("idempotency_key = ?", idemKey).First(&prior).Error; err == nil {
			return l.resultFor(tx, accountID, &prior, true)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var account models.Account
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	entry := models.LedgerEntry{
		AccountID: accountID,
		Delta:     delta,
		Kind:      kind,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if idemKey != "" {
		key := idemKey
		entry.IdempotencyKey = &key
	}
	if err := tx.Create(&entry).Error; err != nil {
		// Lost a race against another holder of the same key: absorb as a
		// no-op success, same as the pre-check above.
		if idemKey != "" && isDuplicateKeyError(err) {
			var prior models.LedgerEntry
			if ferr := tx.Where("idempotency_key = ?", idemKey).First(&prior).Error; ferr == nil {
				return l.resultFor(tx, accountID, &prior, true)
			}
		}
		return nil, err
	}

	leveledUp := false
	switch kind {
	case models.LedgerKindPoints:
		if account.Points+delta < 0 {
			return nil, ErrInsufficientBalance
		}
		account.Points += delta
	case models.LedgerKindXP:
		if account.XP+delta < 0 {
			return nil, ErrInsufficientBalance
		}
		account.XP += delta
		if next := LevelForXP(account.XP); next != account.Level {
			leveledUp = next > account.Level
			account.Level = next
		}
	}

	updates := map[string]interface{}{
		"points":     account.Points,
		"xp":         account.XP,
		"level":      account.Level,
		"updated_at": time.Now(),
	}
	if err := tx.Model(&models.Account{}).Where("id = ?", accountID).Updates(updates).Error; err != nil {
		return nil, err
	}

	return &LedgerResult{
		Entry:     &entry,
		Points:    account.Points,
		XP:        account.XP,
		Level:     account.Level,
		LeveledUp: leveledUp,
	}, nil
}

// resultFor builds a duplicate-key result from the current account state.
func (l *Ledger) resultFor(tx *gorm.DB, accountID uint, entry *models.LedgerEntry, duplicate bool) (*LedgerResult, error) {
	var account models.Account
	if err := tx.First(&account, accountID).Error; err != nil {
		return nil, err
	}
	return &LedgerResult{
		Entry:     entry,
		Points:    account.Points,
		XP:        account.XP,
		Level:     account.Level,
		Duplicate: duplicate,
	}, nil
}

// FoldBalance recomputes the balances from the entry log. The cached columns
// on the account row must always equal this fold.
func (l *Ledger) FoldBalance(accountID uint) (points int, xp int, err error) {
	type sums struct {
		Kind  string
		Total int
	}
	var rows []sums
	err = l.db.Model(&models.LedgerEntry{}).
		Select("kind, COALESCE(SUM(delta),0) AS total").
		Where("account_id = ?", accountID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		switch r.Kind {
		case models.LedgerKindPoints:
			points = r.Total
		case models.LedgerKindXP:
			xp = r.Total
		}
	}
	return points, xp, nil
}

// HasEntry reports whether an entry with the given idempotency key exists.
// The badge engine uses it to re-issue payouts that failed after a grant.
func (l *Ledger) HasEntry(idemKey string) (bool, error) {
	var count int64
	err := l.db.Model(&models.LedgerEntry{}).Where("idempotency_key = ?", idemKey).Count(&count).Error
	return count > 0, err
}

// isDuplicateKeyError detects unique-constraint violations across the MySQL
// production driver and the SQLite test driver. It must stay narrow: a NOT
// NULL or CHECK violation absorbed as a duplicate would silently swallow a
// real write failure.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
