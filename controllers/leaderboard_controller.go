package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scanvoice/gamify/engine"
	"github.com/scanvoice/gamify/middleware"
	"github.com/scanvoice/gamify/utils"
)

// LeaderboardController serves the ranking read side.
type LeaderboardController struct {
	board *engine.Leaderboard
	size  int
}

// NewLeaderboardController creates a new controller instance.
func NewLeaderboardController(board *engine.Leaderboard, size int) *LeaderboardController {
	return &LeaderboardController{board: board, size: size}
}

// Top returns the ranked top N for the requested period (weekly, monthly or
// alltime; default weekly).
func (l *LeaderboardController) Top(ctx *gin.Context) {
	period := ctx.DefaultQuery("period", engine.PeriodWeekly)
	if !engine.ValidPeriod(period) {
		utils.Error(ctx, http.StatusBadRequest, 40050, "unknown leaderboard period")
		return
	}

	entries, err := l.board.Rank(period, l.size)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to load leaderboard")
		return
	}

	utils.Success(ctx, gin.H{
		"period":  period,
		"entries": entries,
	})
}

// Me answers the authenticated account's rank for the period, even outside
// the displayed top N.
func (l *LeaderboardController) Me(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	period := ctx.DefaultQuery("period", engine.PeriodWeekly)
	if !engine.ValidPeriod(period) {
		utils.Error(ctx, http.StatusBadRequest, 40050, "unknown leaderboard period")
		return
	}

	rank, points, err := l.board.RankOf(accountID, period)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to compute rank")
		return
	}

	utils.Success(ctx, gin.H{
		"period": period,
		"rank":   rank,
		"points": points,
	})
}
