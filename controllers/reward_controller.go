package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scanvoice/gamify/engine"
	"github.com/scanvoice/gamify/middleware"
	"github.com/scanvoice/gamify/utils"
)

// RewardController handles the reward catalog and redemption endpoints.
type RewardController struct {
	rewards *engine.RewardService
}

// NewRewardController creates a new controller instance.
func NewRewardController(rewards *engine.RewardService) *RewardController {
	return &RewardController{rewards: rewards}
}

// List returns active rewards with derived remaining stock.
func (r *RewardController) List(ctx *gin.Context) {
	listings, err := r.rewards.Catalog()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load rewards")
		return
	}
	utils.Success(ctx, listings)
}

type redeemRequest struct {
	RewardID uint `json:"reward_id" binding:"required"`
}

// Redeem exchanges points for a reward. Each business-rule rejection maps to
// its own code so clients can present the exact reason.
func (r *RewardController) Redeem(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req redeemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request body")
		return
	}

	redemption, err := r.rewards.Redeem(accountID, req.RewardID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrRewardNotFound):
			utils.Error(ctx, http.StatusNotFound, 40440, "reward not found")
		case errors.Is(err, engine.ErrRewardInactive):
			utils.Error(ctx, http.StatusConflict, 40941, "reward inactive")
		case errors.Is(err, engine.ErrOutOfStock):
			utils.Error(ctx, http.StatusConflict, 40942, "reward out of stock")
		case errors.Is(err, engine.ErrInsufficientPoints):
			utils.Error(ctx, http.StatusConflict, 40943, "insufficient points")
		case errors.Is(err, engine.ErrAccountNotFound):
			utils.Error(ctx, http.StatusNotFound, 40410, "account not found")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50041, "redeem failed")
		}
		return
	}

	utils.Success(ctx, redemption)
}
