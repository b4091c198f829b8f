package engine

// SpinPrize is one slot of the daily draw prize table. Weights are relative
// integers; a prize's probability is Weight over the table's total weight.
type SpinPrize struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
	XP     int    `json:"xp"`
	Weight int    `json:"weight"`
}

// Settings is the point-value snapshot injected into every engine service.
// It is built once from configuration at boot (or per test) so the engine
// never reads ambient global state.
type Settings struct {
	FeedbackPoints  int
	FeedbackXP      int
	FiveStarBonus   int
	LoginPoints     int
	LoginXP         int
	ReferralPoints  int
	ReferralXP      int
	SpinPrizes      []SpinPrize
	LeaderboardSize int
}

// DefaultSettings returns the values used when configuration does not
// override them.
func DefaultSettings() Settings {
	return Settings{
		FeedbackPoints:  10,
		FeedbackXP:      20,
		FiveStarBonus:   5,
		LoginPoints:     5,
		LoginXP:         10,
		ReferralPoints:  50,
		ReferralXP:      50,
		LeaderboardSize: 50,
		SpinPrizes: []SpinPrize{
			{ID: "points_5", Name: "5 Points", Points: 5, Weight: 40},
			{ID: "points_10", Name: "10 Points", Points: 10, Weight: 30},
			{ID: "points_25", Name: "25 Points", Points: 25, Weight: 15},
			{ID: "points_50", Name: "50 Points", Points: 50, Weight: 9},
			{ID: "xp_100", Name: "100 XP", XP: 100, Weight: 5},
			{ID: "jackpot", Name: "Jackpot 200 Points", Points: 200, Weight: 1},
		},
	}
}

// TotalSpinWeight sums the prize table weights.
func (s Settings) TotalSpinWeight() int {
	total := 0
	for _, p := range s.SpinPrizes {
		total += p.Weight
	}
	return total
}
