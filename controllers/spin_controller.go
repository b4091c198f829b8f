package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scanvoice/gamify/engine"
	"github.com/scanvoice/gamify/middleware"
	"github.com/scanvoice/gamify/utils"
)

// SpinController handles the daily weighted draw endpoints.
type SpinController struct {
	spins *engine.SpinService
}

// NewSpinController creates a new controller instance.
func NewSpinController(spins *engine.SpinService) *SpinController {
	return &SpinController{spins: spins}
}

// Draw runs today's spin for the authenticated account. The outcome is
// chosen server-side; the response carries the prize for the client to
// animate.
func (s *SpinController) Draw(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	outcome, err := s.spins.Draw(accountID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrAlreadySpunToday):
			utils.Error(ctx, http.StatusConflict, 40930, "already spun today")
		case errors.Is(err, engine.ErrAccountNotFound):
			utils.Error(ctx, http.StatusNotFound, 40410, "account not found")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50030, "spin failed")
		}
		return
	}

	utils.Success(ctx, outcome)
}

// Status reports whether today's spin is still available.
func (s *SpinController) Status(ctx *gin.Context) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	status, err := s.spins.Status(accountID)
	if err != nil {
		if errors.Is(err, engine.ErrAccountNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "account not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to load spin status")
		return
	}

	utils.Success(ctx, status)
}
