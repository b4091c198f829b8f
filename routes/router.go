package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/scanvoice/gamify/config"
	"github.com/scanvoice/gamify/controllers"
	"github.com/scanvoice/gamify/engine"
	"github.com/scanvoice/gamify/middleware"
	"github.com/scanvoice/gamify/utils"
)

// Services bundles the wired engine components the router exposes.
type Services struct {
	Intake      *engine.Intake
	Spins       *engine.SpinService
	Rewards     *engine.RewardService
	Badges      *engine.BadgeEngine
	Quests      *engine.QuestTracker
	Analytics   *engine.Analytics
	Leaderboard *engine.Leaderboard
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, svc Services) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	activityController := controllers.NewActivityController(svc.Intake)
	spinController := controllers.NewSpinController(svc.Spins)
	rewardController := controllers.NewRewardController(svc.Rewards)
	accountController := controllers.NewAccountController(db, svc.Badges, svc.Quests, svc.Analytics)
	leaderboardController := controllers.NewLeaderboardController(svc.Leaderboard, cfg.LeaderboardSize)

	api := r.Group("/api/v1/engine")

	// Public read side
	api.GET("/rewards", rewardController.List)
	api.GET("/leaderboard", leaderboardController.Top)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())

	mutating := protected.Group("")
	mutating.Use(middleware.RateLimitMiddleware())
	mutating.POST("/account", activityController.Register)
	mutating.POST("/events/feedback", activityController.Feedback)
	mutating.POST("/events/login", activityController.Login)
	mutating.POST("/events/referral", activityController.Referral)
	mutating.POST("/spin", spinController.Draw)
	mutating.POST("/redeem", rewardController.Redeem)

	protected.GET("/spin/status", spinController.Status)
	protected.GET("/account", accountController.Summary)
	protected.GET("/account/badges", accountController.Badges)
	protected.GET("/account/quests", accountController.Quests)
	protected.GET("/account/streak", accountController.Streak)
	protected.GET("/account/trend", accountController.Trend)
	protected.GET("/leaderboard/me", leaderboardController.Me)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
