package postgres

import (
	"context"
	"fmt"
	"strconv"

	"wildlife-rewards-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SettingsLoader builds the reward configuration snapshot from the
// admin-editable tables: site_settings (key/value toggles and multipliers)
// and rewards_configuration (per activity/tier thresholds, base amounts and
// caps). An activity with no configuration rows stays absent from the
// snapshot, which the calculator surfaces as ErrConfigurationMissing.
type SettingsLoader struct {
	pool *pgxpool.Pool
}

func NewSettingsLoader(pool *pgxpool.Pool) *SettingsLoader {
	return &SettingsLoader{pool: pool}
}

func (l *SettingsLoader) LoadConfig(ctx context.Context) (domain.RewardConfig, error) {
	settings, err := l.loadSettings(ctx)
	if err != nil {
		return domain.RewardConfig{}, err
	}
	activities, err := l.loadActivities(ctx)
	if err != nil {
		return domain.RewardConfig{}, err
	}

	cfg := domain.RewardConfig{
		Enabled:    settings.getBool("rewards_system_enabled", true),
		Activities: activities,
		Bonuses: domain.BonusConfig{
			TierMultipliers: map[domain.Tier]float64{
				domain.TierBronze:   settings.getFloat("tier_multiplier_bronze", 1.0),
				domain.TierSilver:   settings.getFloat("tier_multiplier_silver", 1.2),
				domain.TierGold:     settings.getFloat("tier_multiplier_gold", 1.5),
				domain.TierPlatinum: settings.getFloat("tier_multiplier_platinum", 2.0),
			},
			QuickCompletionSec:        settings.getInt("quick_completion_bonus_threshold", 30),
			QuickCompletionMultiplier: settings.getFloat("quick_completion_bonus_multiplier", 1.25),
			StreakThresholdDays:       settings.getInt("streak_bonus_threshold", 3),
			StreakMultiplier:          settings.getFloat("streak_bonus_multiplier", 1.1),
			StreakPerDayIncrement:     settings.getFloat("streak_bonus_per_day_increment", 0.02),
			StreakMultiplierMax:       settings.getFloat("streak_bonus_multiplier_max", 2.0),
			WeekendEnabled:            settings.getBool("weekend_bonus_enabled", false),
			WeekendMultiplier:         settings.getFloat("weekend_bonus_multiplier", 1.5),
			SeasonalEventActive:       settings.getBool("seasonal_event_active", false),
			SeasonalEventName:         settings.getString("seasonal_event_name", ""),
			SeasonalEventMultiplier:   settings.getFloat("seasonal_event_multiplier", 1.8),
			SpecialEventMultiplier:    settings.getFloat("special_event_multiplier", 1.0),
			PerfectScoreMultiplier:    settings.getFloat("perfect_score_multiplier", 1.25),
		},
		AntiGaming: map[domain.ActivityType]domain.AntiGamingRules{
			domain.ActivityQuiz:       l.antiGamingRules(settings, "quiz", 30, 5, 10, 0.7, 0.3, 0.4),
			domain.ActivityMythsFacts: l.antiGamingRules(settings, "mvf", 20, 10, 15, 0.8, 0.25, 0.3),
		},
		Leaderboard: domain.LeaderboardConfig{
			PublicEnabled: settings.getBool("leaderboard_public_enabled", true),
			AnonymousMode: settings.getBool("leaderboard_anonymous_mode", false),
			ShowRealNames: settings.getBool("leaderboard_show_real_names", false),
			MaxEntries:    settings.getInt("leaderboard_max_entries", 100),
		},
	}
	return cfg, nil
}

func (l *SettingsLoader) antiGamingRules(s settingsMap, prefix string, minTime, maxPerfect, maxAttempts int, threshold, tooFast, perfectStreak float64) domain.AntiGamingRules {
	return domain.AntiGamingRules{
		MinTimeSeconds:        s.getInt(prefix+"_min_time_seconds", minTime),
		MaxPerfectPerDay:      s.getInt(prefix+"_max_perfect_scores_per_day", maxPerfect),
		MaxAttemptsPerHour:    s.getInt(prefix+"_max_attempts_per_hour", maxAttempts),
		FlagThreshold:         s.getFloat(prefix+"_suspicious_pattern_threshold", threshold),
		TimeTooFastWeight:     s.getFloat(prefix+"_time_too_fast_weight", tooFast),
		RapidFireWeight:       s.getFloat(prefix+"_rapid_fire_weight", 0.2),
		PerfectStreakWeight:   s.getFloat(prefix+"_perfect_streak_weight", perfectStreak),
		RepeatedPatternWeight: s.getFloat(prefix+"_repeated_pattern_weight", 0.3),
	}
}

func (l *SettingsLoader) loadSettings(ctx context.Context) (settingsMap, error) {
	rows, err := l.pool.Query(ctx, `SELECT key, value FROM site_settings`)
	if err != nil {
		return nil, fmt.Errorf("load site settings: %w", err)
	}
	defer rows.Close()

	settings := make(settingsMap)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (l *SettingsLoader) loadActivities(ctx context.Context) (map[domain.ActivityType]domain.ActivityConfig, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT activity_type, tier, base_points, base_credits,
		       min_score_percentage, daily_points_cap, daily_credits_cap
		FROM rewards_configuration`)
	if err != nil {
		return nil, fmt.Errorf("load rewards configuration: %w", err)
	}
	defer rows.Close()

	activities := make(map[domain.ActivityType]domain.ActivityConfig)
	for rows.Next() {
		var activity domain.ActivityType
		var tier domain.Tier
		var basePoints, baseCredits, minScore, pointsCap, creditsCap int
		if err := rows.Scan(&activity, &tier, &basePoints, &baseCredits,
			&minScore, &pointsCap, &creditsCap); err != nil {
			return nil, fmt.Errorf("scan rewards configuration: %w", err)
		}

		cfg, ok := activities[activity]
		if !ok {
			cfg = domain.ActivityConfig{
				TierThresholds: make(map[domain.Tier]int),
				BaseAmounts:    make(map[domain.Tier]domain.BaseAmount),
			}
		}
		cfg.TierThresholds[tier] = minScore
		cfg.BaseAmounts[tier] = domain.BaseAmount{Points: basePoints, Credits: baseCredits}
		// Caps repeat on every tier row; the per-activity value wins.
		cfg.DailyPointsCap = pointsCap
		cfg.DailyCreditsCap = creditsCap
		activities[activity] = cfg
	}
	return activities, rows.Err()
}

type settingsMap map[string]string

func (m settingsMap) getString(key, fallback string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func (m settingsMap) getInt(key string, fallback int) int {
	if v, ok := m[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (m settingsMap) getFloat(key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (m settingsMap) getBool(key string, fallback bool) bool {
	if v, ok := m[key]; ok {
		switch v {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
