package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scanvoice/gamify/engine"
	"github.com/scanvoice/gamify/middleware"
	"github.com/scanvoice/gamify/utils"
)

// ActivityController is the intake surface: activity events enter the engine
// here and fan out to the ledger, quests and badges.
type ActivityController struct {
	intake *engine.Intake
}

// NewActivityController creates a new controller instance.
func NewActivityController(intake *engine.Intake) *ActivityController {
	return &ActivityController{intake: intake}
}

type feedbackRequest struct {
	Rating         int    `json:"rating" binding:"required"`
	TextLength     int    `json:"text_length"`
	BusinessID     uint   `json:"business_id"`
	OccurredAt     string `json:"occurred_at"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Feedback records a feedback_submitted event for the authenticated account.
func (a *ActivityController) Feedback(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req feedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		utils.Error(ctx, http.StatusBadRequest, 40011, "rating must be between 1 and 5")
		return
	}

	at := parseTime(req.OccurredAt)
	if err := a.intake.RecordFeedback(accountID, req.Rating, req.TextLength, req.BusinessID, at, req.IdempotencyKey); err != nil {
		if errors.Is(err, engine.ErrAccountNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "account not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to record feedback")
		return
	}

	utils.Success(ctx, gin.H{"message": "feedback recorded"})
}

// Login records a login event; only the first login of the day earns points.
func (a *ActivityController) Login(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	if err := a.intake.RecordLogin(accountID, time.Time{}); err != nil {
		if errors.Is(err, engine.ErrAccountNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "account not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to record login")
		return
	}

	utils.Success(ctx, gin.H{"message": "login recorded"})
}

type referralRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// Referral records a successful referral event.
func (a *ActivityController) Referral(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req referralRequest
	_ = ctx.ShouldBindJSON(&req)

	if err := a.intake.RecordReferral(accountID, time.Time{}, req.IdempotencyKey); err != nil {
		if errors.Is(err, engine.ErrAccountNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "account not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to record referral")
		return
	}

	utils.Success(ctx, gin.H{"message": "referral recorded"})
}

type registerRequest struct {
	Timezone string `json:"timezone"`
}

// Register ensures the gamification account exists with zero balances.
// Safe to call repeatedly.
func (a *ActivityController) Register(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req registerRequest
	_ = ctx.ShouldBindJSON(&req)

	account, err := a.intake.EnsureAccount(accountID, req.Timezone)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to create account")
		return
	}

	utils.Success(ctx, account)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
