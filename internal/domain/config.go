package domain

// RewardConfig is the runtime configuration snapshot for the reward core.
// Every threshold, base amount, multiplier and toggle is admin-editable in
// the settings store; nothing here is a compile-time constant. Components
// receive a snapshot per operation so calculations are reproducible.
type RewardConfig struct {
	Enabled     bool                             `json:"enabled"`
	Activities  map[ActivityType]ActivityConfig  `json:"activities"`
	Bonuses     BonusConfig                      `json:"bonuses"`
	AntiGaming  map[ActivityType]AntiGamingRules `json:"antiGaming"`
	Leaderboard LeaderboardConfig                `json:"leaderboard"`
}

// ActivityConfig holds per-activity tier thresholds, base amounts and caps.
type ActivityConfig struct {
	// TierThresholds are inclusive lower bounds on score percentage. A score
	// equal to a boundary belongs to the higher tier.
	TierThresholds map[Tier]int `json:"tierThresholds"`
	// BaseAmounts maps tier to base points/credits before multipliers.
	BaseAmounts map[Tier]BaseAmount `json:"baseAmounts"`
	// Daily caps are keyed by activity type, so quiz and myths-vs-facts
	// earnings are limited independently.
	DailyPointsCap  int `json:"dailyPointsCap"`
	DailyCreditsCap int `json:"dailyCreditsCap"`
}

// BaseAmount is the configured reward for one (activity, tier) pair.
type BaseAmount struct {
	Points  int `json:"points"`
	Credits int `json:"credits"`
}

// BonusConfig drives the multiplier stack. Factors apply all-or-nothing in
// the fixed order: tier, quick completion, streak, weekend, seasonal event,
// special event, perfect score.
type BonusConfig struct {
	TierMultipliers map[Tier]float64 `json:"tierMultipliers"`

	QuickCompletionSec        int     `json:"quickCompletionSec"`
	QuickCompletionMultiplier float64 `json:"quickCompletionMultiplier"`

	StreakThresholdDays  int     `json:"streakThresholdDays"`
	StreakMultiplier     float64 `json:"streakMultiplier"`
	StreakPerDayIncrement float64 `json:"streakPerDayIncrement"`
	StreakMultiplierMax  float64 `json:"streakMultiplierMax"`

	WeekendEnabled    bool    `json:"weekendEnabled"`
	WeekendMultiplier float64 `json:"weekendMultiplier"`

	SeasonalEventActive     bool    `json:"seasonalEventActive"`
	SeasonalEventName       string  `json:"seasonalEventName"`
	SeasonalEventMultiplier float64 `json:"seasonalEventMultiplier"`

	SpecialEventMultiplier float64 `json:"specialEventMultiplier"` // <= 1.0 means off

	PerfectScoreMultiplier float64 `json:"perfectScoreMultiplier"`
}

// AntiGamingRules configures the monitor heuristics for one activity type.
type AntiGamingRules struct {
	MinTimeSeconds     int     `json:"minTimeSeconds"`
	MaxPerfectPerDay   int     `json:"maxPerfectPerDay"`
	MaxAttemptsPerHour int     `json:"maxAttemptsPerHour"`
	FlagThreshold      float64 `json:"flagThreshold"`

	TimeTooFastWeight     float64 `json:"timeTooFastWeight"`
	RapidFireWeight       float64 `json:"rapidFireWeight"`
	PerfectStreakWeight   float64 `json:"perfectStreakWeight"`
	RepeatedPatternWeight float64 `json:"repeatedPatternWeight"`
}

// LeaderboardConfig holds the privacy toggles applied at projection time.
type LeaderboardConfig struct {
	PublicEnabled bool `json:"publicEnabled"`
	AnonymousMode bool `json:"anonymousMode"`
	ShowRealNames bool `json:"showRealNames"`
	MaxEntries    int  `json:"maxEntries"`
}

// DefaultRewardConfig mirrors the values the migration seeds into the
// settings tables. Tests and the redis-less serve mode start from it.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		Enabled: true,
		Activities: map[ActivityType]ActivityConfig{
			ActivityQuiz: {
				TierThresholds: map[Tier]int{
					TierBronze: 60, TierSilver: 75, TierGold: 85, TierPlatinum: 95,
				},
				BaseAmounts: map[Tier]BaseAmount{
					TierBronze:   {Points: 5, Credits: 1},
					TierSilver:   {Points: 10, Credits: 2},
					TierGold:     {Points: 20, Credits: 5},
					TierPlatinum: {Points: 30, Credits: 10},
				},
				DailyPointsCap:  300,
				DailyCreditsCap: 50,
			},
			ActivityMythsFacts: {
				TierThresholds: map[Tier]int{
					TierBronze: 50, TierSilver: 70, TierGold: 85, TierPlatinum: 95,
				},
				BaseAmounts: map[Tier]BaseAmount{
					TierBronze:   {Points: 3, Credits: 1},
					TierSilver:   {Points: 7, Credits: 2},
					TierGold:     {Points: 15, Credits: 3},
					TierPlatinum: {Points: 25, Credits: 5},
				},
				DailyPointsCap:  200,
				DailyCreditsCap: 50,
			},
		},
		Bonuses: BonusConfig{
			TierMultipliers: map[Tier]float64{
				TierBronze: 1.0, TierSilver: 1.2, TierGold: 1.5, TierPlatinum: 2.0,
			},
			QuickCompletionSec:        30,
			QuickCompletionMultiplier: 1.25,
			StreakThresholdDays:       3,
			StreakMultiplier:          1.1,
			StreakPerDayIncrement:     0.02,
			StreakMultiplierMax:       2.0,
			WeekendEnabled:            false,
			WeekendMultiplier:         1.5,
			SeasonalEventMultiplier:   1.8,
			SpecialEventMultiplier:    1.0,
			PerfectScoreMultiplier:    1.25,
		},
		AntiGaming: map[ActivityType]AntiGamingRules{
			ActivityQuiz: {
				MinTimeSeconds:     30,
				MaxPerfectPerDay:   5,
				MaxAttemptsPerHour: 10,
				FlagThreshold:      0.7,
				TimeTooFastWeight:  0.3,
				RapidFireWeight:    0.2,
				PerfectStreakWeight: 0.4,
				RepeatedPatternWeight: 0.3,
			},
			ActivityMythsFacts: {
				MinTimeSeconds:     20,
				MaxPerfectPerDay:   10,
				MaxAttemptsPerHour: 15,
				FlagThreshold:      0.8,
				TimeTooFastWeight:  0.25,
				RapidFireWeight:    0.2,
				PerfectStreakWeight: 0.3,
				RepeatedPatternWeight: 0.3,
			},
		},
		Leaderboard: LeaderboardConfig{
			PublicEnabled: true,
			AnonymousMode: false,
			ShowRealNames: false,
			MaxEntries:    100,
		},
	}
}
