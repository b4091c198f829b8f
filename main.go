package main

import (
	"github.com/scanvoice/gamify/config"
	"github.com/scanvoice/gamify/engine"
	"github.com/scanvoice/gamify/models"
	"github.com/scanvoice/gamify/routes"
	"github.com/scanvoice/gamify/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.Account{},
		&models.LedgerEntry{},
		&models.Activity{},
		&models.Badge{},
		&models.AccountBadge{},
		&models.Quest{},
		&models.QuestProgress{},
		&models.Reward{},
		&models.RewardRedemption{},
		&models.SpinRecord{},
	)

	settings := engineSettings(cfg)
	notifier := engine.NewLogNotifier(utils.Sugar)

	ledger := engine.NewLedger(db, notifier)
	analytics := engine.NewAnalytics(db)
	badges := engine.NewBadgeEngine(db, ledger, analytics, notifier, utils.Sugar)
	quests := engine.NewQuestTracker(db, ledger, notifier, utils.Sugar)
	rewards := engine.NewRewardService(db, ledger, notifier)
	spins := engine.NewSpinService(db, ledger, settings, notifier)
	leaderboard := engine.NewLeaderboard(db, utils.GetRedis())
	intake := engine.NewIntake(db, ledger, badges, quests, settings, utils.Sugar)

	r := routes.SetupRouter(db, routes.Services{
		Intake:      intake,
		Spins:       spins,
		Rewards:     rewards,
		Badges:      badges,
		Quests:      quests,
		Analytics:   analytics,
		Leaderboard: leaderboard,
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// engineSettings builds the injected settings snapshot from configuration.
func engineSettings(cfg config.AppConfig) engine.Settings {
	settings := engine.DefaultSettings()
	settings.FeedbackPoints = cfg.FeedbackPoints
	settings.FeedbackXP = cfg.FeedbackXP
	settings.FiveStarBonus = cfg.FiveStarBonus
	settings.LoginPoints = cfg.LoginPoints
	settings.LoginXP = cfg.LoginXP
	settings.ReferralPoints = cfg.ReferralPoints
	settings.ReferralXP = cfg.ReferralXP
	settings.LeaderboardSize = cfg.LeaderboardSize
	if len(cfg.SpinPrizes) > 0 {
		prizes := make([]engine.SpinPrize, 0, len(cfg.SpinPrizes))
		for _, p := range cfg.SpinPrizes {
			prizes = append(prizes, engine.SpinPrize{
				ID:     p.ID,
				Name:   p.Name,
				Points: p.Points,
				XP:     p.XP,
				Weight: p.Weight,
			})
		}
		settings.SpinPrizes = prizes
	}
	return settings
}
