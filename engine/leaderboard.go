package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/scanvoice/gamify/models"
)

// Leaderboard periods.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAllTime = "alltime"
)

const leaderboardCacheTTL = time.Minute

// RankEntry is one leaderboard row. Points are the points earned within the
// period (positive ledger deltas), not the live balance, so spending points
// never retroactively costs leaderboard credit.
type RankEntry struct {
	Rank      int  `json:"rank"`
	AccountID uint `json:"account_id"`
	Points    int  `json:"points"`
}

// Leaderboard produces deterministic tie-broken rankings over a scoring
// period. Read-only; an optional Redis client caches the top-N response.
type Leaderboard struct {
	db    *gorm.DB
	cache *redis.Client
	now   func() time.Time
}

// NewLeaderboard creates a Leaderboard. A nil cache disables caching.
func NewLeaderboard(db *gorm.DB, cache *redis.Client) *Leaderboard {
	return &Leaderboard{db: db, cache: cache, now: time.Now}
}

// Rank returns the top limit accounts for the period, ordered by earned
// points descending with ascending account id as the tie-break, so repeated
// queries on unchanged data always agree.
func (l *Leaderboard) Rank(period string, limit int) ([]RankEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("gamify:leaderboard:%s:%d", period, limit)
	if cached, ok := l.cacheGet(cacheKey); ok {
		return cached, nil
	}

	query := l.db.Model(&models.LedgerEntry{}).
		Select("account_id, COALESCE(SUM(delta),0) AS points").
		Where("kind = ? AND delta > 0", models.LedgerKindPoints).
		Group("account_id").
		Order("points DESC, account_id ASC").
		Limit(limit)
	if start, bounded := l.periodStart(period); bounded {
		query = query.Where("created_at >= ?", start)
	}

	var rows []RankEntry
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}

	l.cacheSet(cacheKey, rows)
	return rows, nil
}

// RankOf answers "what is this account's rank" for the period, including
// accounts outside the displayed top N. Rank 0 means the account earned
// nothing in the period.
func (l *Leaderboard) RankOf(accountID uint, period string) (int, int, error) {
	start, bounded := l.periodStart(period)

	mine := l.db.Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(delta),0)").
		Where("kind = ? AND delta > 0 AND account_id = ?", models.LedgerKindPoints, accountID)
	if bounded {
		mine = mine.Where("created_at >= ?", start)
	}
	var points int
	if err := mine.Scan(&points).Error; err != nil {
		return 0, 0, err
	}
	if points == 0 {
		return 0, 0, nil
	}

	window := "kind = ? AND delta > 0"
	args := []interface{}{models.LedgerKindPoints}
	if bounded {
		window += " AND created_at >= ?"
		args = append(args, start)
	}
	sub := l.db.Model(&models.LedgerEntry{}).
		Select("account_id, COALESCE(SUM(delta),0) AS points").
		Where(window, args...).
		Group("account_id")

	var ahead int64
	err := l.db.Table("(?) AS totals", sub).
		Where("points > ? OR (points = ? AND account_id < ?)", points, points, accountID).
		Count(&ahead).Error
	if err != nil {
		return 0, 0, err
	}
	return int(ahead) + 1, points, nil
}

// ValidPeriod reports whether period names a supported scoring window.
func ValidPeriod(period string) bool {
	switch period {
	case PeriodWeekly, PeriodMonthly, PeriodAllTime:
		return true
	default:
		return false
	}
}

// periodStart resolves the window start in server-local time; bounded is
// false for the all-time period.
func (l *Leaderboard) periodStart(period string) (time.Time, bool) {
	now := l.now().In(time.Local)
	switch period {
	case PeriodWeekly:
		// ISO week: walk back to Monday 00:00.
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		monday := now.AddDate(0, 0, -(weekday - 1))
		return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, now.Location()), true
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}

func (l *Leaderboard) cacheGet(key string) ([]RankEntry, bool) {
	if l.cache == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := l.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []RankEntry
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (l *Leaderboard) cacheSet(key string, rows []RankEntry) {
	if l.cache == nil {
		return
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = l.cache.Set(ctx, key, b, leaderboardCacheTTL).Err()
}
