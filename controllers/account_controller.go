package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/scanvoice/gamify/engine"
	"github.com/scanvoice/gamify/middleware"
	"github.com/scanvoice/gamify/models"
	"github.com/scanvoice/gamify/utils"
)

// AccountController serves per-account read endpoints: balances, badges,
// quest progress, streaks and trends.
type AccountController struct {
	db        *gorm.DB
	badges    *engine.BadgeEngine
	quests    *engine.QuestTracker
	analytics *engine.Analytics
}

// NewAccountController creates a new controller instance.
func NewAccountController(db *gorm.DB, badges *engine.BadgeEngine, quests *engine.QuestTracker, analytics *engine.Analytics) *AccountController {
	return &AccountController{db: db, badges: badges, quests: quests, analytics: analytics}
}

// Summary returns the account's balances, level and current streak.
func (a *AccountController) Summary(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var account models.Account
	if err := a.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "account not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to load account")
		return
	}

	streak, err := a.analytics.CurrentStreak(accountID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to compute streak")
		return
	}

	nextLevelXP := account.Level*engine.XPPerLevel - account.XP

	utils.Success(ctx, gin.H{
		"account":        account,
		"current_streak": streak,
		"next_level_xp":  nextLevelXP,
	})
}

// Badges lists granted badges plus locked ones with their requirement text.
func (a *AccountController) Badges(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var all []models.Badge
	if err := a.db.Where("active = ?", true).Order("id").Find(&all).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to load badges")
		return
	}

	var grants []models.AccountBadge
	if err := a.db.Where("account_id = ?", accountID).Find(&grants).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to load badges")
		return
	}
	grantedAt := make(map[uint]*models.AccountBadge, len(grants))
	for i := range grants {
		grantedAt[grants[i].BadgeID] = &grants[i]
	}

	type badgeView struct {
		Badge       models.Badge `json:"badge"`
		Granted     bool         `json:"granted"`
		GrantedAt   interface{}  `json:"granted_at,omitempty"`
		Requirement string       `json:"requirement"`
	}
	views := make([]badgeView, 0, len(all))
	for _, b := range all {
		v := badgeView{Badge: b, Requirement: engine.RequirementOf(&b).Describe()}
		if g, ok := grantedAt[b.ID]; ok {
			v.Granted = true
			v.GrantedAt = g.GrantedAt
		}
		views = append(views, v)
	}

	utils.Success(ctx, views)
}

// Quests lists current-period progress on every active quest.
func (a *AccountController) Quests(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	statuses, err := a.quests.ProgressFor(accountID)
	if err != nil {
		if errors.Is(err, engine.ErrAccountNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "account not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50063, "failed to load quests")
		return
	}

	utils.Success(ctx, statuses)
}

// Streak reports the current and best consecutive-day runs plus the peak
// activity hour.
func (a *AccountController) Streak(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	current, err := a.analytics.CurrentStreak(accountID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50064, "failed to compute streak")
		return
	}
	best, err := a.analytics.MaxStreak(accountID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50064, "failed to compute streak")
		return
	}
	peakHour, peakCount, err := a.analytics.PeakHour(accountID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50064, "failed to compute streak")
		return
	}

	utils.Success(ctx, gin.H{
		"current_streak":  current,
		"max_streak":      best,
		"peak_hour":       peakHour,
		"peak_hour_count": peakCount,
	})
}

// Trend returns the zero-filled daily activity series for the last N days
// (default 7, max 90).
func (a *AccountController) Trend(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	days := 7
	if raw := ctx.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			utils.Error(ctx, http.StatusBadRequest, 40060, "days must be between 1 and 90")
			return
		}
		days = parsed
	}

	series, err := a.analytics.Trend(accountID, days)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50065, "failed to compute trend")
		return
	}

	utils.Success(ctx, series)
}
