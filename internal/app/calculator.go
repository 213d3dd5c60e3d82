package app

import (
	"math"
	"time"

	"wildlife-rewards-service/internal/domain"
)

// UserContext carries the per-user state the calculator needs beyond the
// completion itself. StreakKnown is false when no streak history was
// available; the streak bonus is then skipped rather than failing the flow.
type UserContext struct {
	StreakDays  int
	StreakKnown bool
}

// Multiplier names, in the order the stack applies them.
const (
	BonusTier            = "tier"
	BonusQuickCompletion = "quick_completion"
	BonusStreak          = "streak"
	BonusWeekend         = "weekend"
	BonusSeasonalEvent   = "seasonal_event"
	BonusSpecialEvent    = "special_event"
	BonusPerfectScore    = "perfect_score"
)

// CalculateReward maps a completion to tier, base amounts and the multiplier
// stack. It is pure: everything it needs arrives as an argument, including
// the completion timestamp used for the weekend check.
//
// Multipliers accumulate in floating point and the floor is applied exactly
// once at the end, so floor(10 * 1.5 * 1.25) = 18, never 19. Credits receive
// only the tier multiplier; all engagement bonuses are points-only.
func CalculateReward(completion domain.ActivityCompletion, user UserContext, cfg domain.RewardConfig) (domain.RewardResult, error) {
	activity, ok := cfg.Activities[completion.ActivityType]
	if !ok || len(activity.TierThresholds) == 0 || len(activity.BaseAmounts) == 0 {
		return domain.RewardResult{}, domain.ErrConfigurationMissing
	}

	tier := tierForScore(completion.ScorePercentage, activity.TierThresholds)
	if tier == domain.TierNone {
		return domain.RewardResult{Tier: domain.TierNone}, nil
	}

	base, ok := activity.BaseAmounts[tier]
	if !ok {
		return domain.RewardResult{}, domain.ErrConfigurationMissing
	}

	result := domain.RewardResult{
		Tier:        tier,
		BasePoints:  base.Points,
		BaseCredits: base.Credits,
	}

	if !cfg.Enabled {
		// Rewards system switched off: base amounts pass through untouched.
		result.FinalPoints = base.Points
		result.FinalCredits = base.Credits
		return result, nil
	}

	pointsFactor := 1.0
	creditsFactor := 1.0
	apply := func(name string, factor float64) {
		pointsFactor *= factor
		result.Multipliers = append(result.Multipliers, domain.AppliedMultiplier{Name: name, Factor: factor})
	}

	if tierFactor, ok := cfg.Bonuses.TierMultipliers[tier]; ok {
		apply(BonusTier, tierFactor)
		creditsFactor = tierFactor
	}

	if cfg.Bonuses.QuickCompletionSec > 0 && completion.TimeTakenSec > 0 &&
		completion.TimeTakenSec <= cfg.Bonuses.QuickCompletionSec {
		apply(BonusQuickCompletion, cfg.Bonuses.QuickCompletionMultiplier)
	}

	if user.StreakKnown && cfg.Bonuses.StreakThresholdDays > 0 &&
		user.StreakDays >= cfg.Bonuses.StreakThresholdDays {
		apply(BonusStreak, streakFactor(user.StreakDays, cfg.Bonuses))
	}

	if cfg.Bonuses.WeekendEnabled && isWeekend(completion.CompletedAt) {
		apply(BonusWeekend, cfg.Bonuses.WeekendMultiplier)
	}

	if cfg.Bonuses.SeasonalEventActive {
		apply(BonusSeasonalEvent, cfg.Bonuses.SeasonalEventMultiplier)
	}

	if cfg.Bonuses.SpecialEventMultiplier > 1.0 {
		apply(BonusSpecialEvent, cfg.Bonuses.SpecialEventMultiplier)
	}

	if completion.Perfect() {
		apply(BonusPerfectScore, cfg.Bonuses.PerfectScoreMultiplier)
	}

	result.FinalPoints = int(math.Floor(float64(base.Points) * pointsFactor))
	result.FinalCredits = int(math.Floor(float64(base.Credits) * creditsFactor))
	return result, nil
}

// tierForScore returns the highest tier whose inclusive lower bound the
// score meets, or TierNone below the lowest threshold.
func tierForScore(score int, thresholds map[domain.Tier]int) domain.Tier {
	tier := domain.TierNone
	best := -1
	for t, min := range thresholds {
		if score >= min && min > best {
			tier = t
			best = min
		}
	}
	return tier
}

// streakFactor scales the base streak multiplier with streak length and
// caps the result so long streaks cannot run away.
func streakFactor(days int, b domain.BonusConfig) float64 {
	factor := b.StreakMultiplier * (1 + float64(days)*b.StreakPerDayIncrement)
	if b.StreakMultiplierMax > 0 && factor > b.StreakMultiplierMax {
		factor = b.StreakMultiplierMax
	}
	return factor
}

func isWeekend(t time.Time) bool {
	switch t.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}
