package app

import (
	"time"

	"wildlife-rewards-service/internal/domain"
)

// Signal names emitted by the monitor.
const (
	SignalTimeTooFast       = "time_too_fast"
	SignalRapidFireAttempts = "rapid_fire_attempts"
	SignalExcessivePerfects = "excessive_perfect_scores"
	SignalRepeatedPattern   = "repeated_answer_pattern"
)

// ActivityHistory is the read-side view the monitor needs. Implementations
// evaluate rolling windows relative to the supplied reference time, never
// wall-clock time, so tests can pin dates.
type ActivityHistory struct {
	AttemptsLastHour  int        // attempts of the same activity type in the rolling hour
	PerfectScoresToday int       // perfect scores of the same activity type in the rolling day
	RecentAnswers     [][]string // answer vectors of recent attempts, newest first
}

// EvaluateCompletion scores a completion against the anti-gaming heuristics.
// Each triggered signal contributes its configured weight; the risk score is
// min(1.0, sum). The monitor only annotates the completion - it never blocks
// the flow, and absent rules or history yield a zero-score record rather
// than an error.
func EvaluateCompletion(completion domain.ActivityCompletion, history *ActivityHistory, cfg domain.RewardConfig, now time.Time) domain.AntiGamingRecord {
	record := domain.AntiGamingRecord{
		UserID:        completion.UserID,
		CompletionRef: completion.CompletionRef,
		ActivityType:  completion.ActivityType,
		CreatedAt:     now,
	}

	rules, ok := cfg.AntiGaming[completion.ActivityType]
	if !ok {
		return record
	}

	risk := 0.0
	trigger := func(name string, weight float64) {
		risk += weight
		record.Signals = append(record.Signals, name)
	}

	if rules.MinTimeSeconds > 0 && completion.TimeTakenSec > 0 &&
		completion.TimeTakenSec < rules.MinTimeSeconds {
		trigger(SignalTimeTooFast, rules.TimeTooFastWeight)
	}

	if history != nil {
		if rules.MaxAttemptsPerHour > 0 && history.AttemptsLastHour >= rules.MaxAttemptsPerHour {
			trigger(SignalRapidFireAttempts, rules.RapidFireWeight)
		}
		if completion.Perfect() && rules.MaxPerfectPerDay > 0 &&
			history.PerfectScoresToday >= rules.MaxPerfectPerDay {
			trigger(SignalExcessivePerfects, rules.PerfectStreakWeight)
		}
		if len(completion.Answers) > 0 && matchesRecentPattern(completion.Answers, history.RecentAnswers) {
			trigger(SignalRepeatedPattern, rules.RepeatedPatternWeight)
		}
	}

	if risk > 1.0 {
		risk = 1.0
	}
	record.RiskScore = risk
	record.Flagged = rules.FlagThreshold > 0 && risk >= rules.FlagThreshold
	return record
}

// matchesRecentPattern reports an exact answer-vector match against any
// recent attempt.
func matchesRecentPattern(answers []string, recent [][]string) bool {
	for _, prev := range recent {
		if len(prev) != len(answers) {
			continue
		}
		same := true
		for i := range prev {
			if prev[i] != answers[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}
