package engine

import (
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/scanvoice/gamify/models"
)

const dayFormat = "2006-01-02"

// TrendPoint is one bucket of a daily activity series.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Analytics answers read-only streak and trend queries over the activity
// log. It never mutates state.
type Analytics struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAnalytics creates an Analytics reader.
func NewAnalytics(db *gorm.DB) *Analytics {
	return &Analytics{db: db, now: time.Now}
}

// CurrentStreak counts consecutive active calendar days ending today, or
// ending yesterday when today has no activity yet. Days are resolved in the
// account's configured timezone.
func (a *Analytics) CurrentStreak(accountID uint) (int, error) {
	days, loc, err := a.activeDays(accountID)
	if err != nil {
		return 0, err
	}
	if len(days) == 0 {
		return 0, nil
	}

	now := a.now().In(loc)
	cursor := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if !days[cursor.Format(dayFormat)] {
		cursor = cursor.AddDate(0, 0, -1)
		if !days[cursor.Format(dayFormat)] {
			return 0, nil
		}
	}

	streak := 0
	for days[cursor.Format(dayFormat)] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak, nil
}

// MaxStreak returns the longest run of consecutive active days anywhere in
// the account's history.
func (a *Analytics) MaxStreak(accountID uint) (int, error) {
	days, _, err := a.activeDays(accountID)
	if err != nil {
		return 0, err
	}
	if len(days) == 0 {
		return 0, nil
	}

	sorted := make([]string, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	best, run := 1, 1
	prev, _ := time.Parse(dayFormat, sorted[0])
	for _, s := range sorted[1:] {
		cur, err := time.Parse(dayFormat, s)
		if err != nil {
			continue
		}
		if cur.Sub(prev) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = cur
	}
	return best, nil
}

// Trend returns a zero-filled series of daily activity counts for the last
// n calendar days, oldest first, today included.
func (a *Analytics) Trend(accountID uint, n int) ([]TrendPoint, error) {
	if n <= 0 {
		n = 7
	}
	loc, err := a.accountLocation(accountID)
	if err != nil {
		return nil, err
	}

	now := a.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	windowStart := today.AddDate(0, 0, -(n - 1))

	var times []time.Time
	if err := a.db.Model(&models.Activity{}).
		Where("account_id = ? AND occurred_at >= ?", accountID, windowStart).
		Order("occurred_at").
		Pluck("occurred_at", &times).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int, n)
	for _, t := range times {
		counts[t.In(loc).Format(dayFormat)]++
	}

	series := make([]TrendPoint, 0, n)
	for i := 0; i < n; i++ {
		day := windowStart.AddDate(0, 0, i).Format(dayFormat)
		series = append(series, TrendPoint{Date: day, Count: counts[day]})
	}
	return series, nil
}

// PeakHour returns the hour of day (0-23, account local) with the most
// recorded activity, and that hour's count. Returns -1 when the account has
// no activity.
func (a *Analytics) PeakHour(accountID uint) (int, int, error) {
	loc, err := a.accountLocation(accountID)
	if err != nil {
		return -1, 0, err
	}

	var times []time.Time
	if err := a.db.Model(&models.Activity{}).
		Where("account_id = ?", accountID).
		Pluck("occurred_at", &times).Error; err != nil {
		return -1, 0, err
	}
	if len(times) == 0 {
		return -1, 0, nil
	}

	var byHour [24]int
	for _, t := range times {
		byHour[t.In(loc).Hour()]++
	}
	peak, best := 0, byHour[0]
	for h := 1; h < 24; h++ {
		if byHour[h] > best {
			peak, best = h, byHour[h]
		}
	}
	return peak, best, nil
}

// activeDays collapses the activity log into the set of distinct active
// calendar days, keyed by local date string.
func (a *Analytics) activeDays(accountID uint) (map[string]bool, *time.Location, error) {
	loc, err := a.accountLocation(accountID)
	if err != nil {
		return nil, nil, err
	}

	var times []time.Time
	if err := a.db.Model(&models.Activity{}).
		Where("account_id = ?", accountID).
		Pluck("occurred_at", &times).Error; err != nil {
		return nil, nil, err
	}

	days := make(map[string]bool, len(times))
	for _, t := range times {
		days[t.In(loc).Format(dayFormat)] = true
	}
	return days, loc, nil
}

func (a *Analytics) accountLocation(accountID uint) (*time.Location, error) {
	var account models.Account
	if err := a.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account.Location(), nil
}
