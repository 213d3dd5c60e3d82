package domain

import "time"

// CurrencyType distinguishes the two economies: points drive engagement,
// credits are the spendable currency.
type CurrencyType string

const (
	CurrencyPoints  CurrencyType = "points"
	CurrencyCredits CurrencyType = "credits"
)

// ActivityType identifies the game subsystem that produced a completion.
type ActivityType string

const (
	ActivityQuiz       ActivityType = "quiz"
	ActivityMythsFacts ActivityType = "myths_facts_game"
)

// TransactionType classifies ledger rows.
type TransactionType string

const (
	TransactionEarned     TransactionType = "earned"
	TransactionSpent      TransactionType = "spent"
	TransactionPenalty    TransactionType = "penalty"
	TransactionAdminGrant TransactionType = "admin_grant"
)

// Tier is the reward bracket derived from score percentage.
type Tier string

const (
	TierNone     Tier = "none"
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// CurrencyTransaction is an immutable ledger row. The running sum of a
// user's amounts per currency always equals the cached balance.
type CurrencyTransaction struct {
	ID              int64             `json:"id"`
	UserID          string            `json:"userId"`
	TransactionType TransactionType   `json:"transactionType"`
	CurrencyType    CurrencyType      `json:"currencyType"`
	Amount          int               `json:"amount"` // signed; negative for spend/penalty
	BalanceAfter    int               `json:"balanceAfter"`
	ActivityType    ActivityType      `json:"activityType"`
	Tier            Tier              `json:"tier"`
	ActivityRef     string            `json:"activityRef,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Balance is the cached per-user view maintained by the ledger.
type Balance struct {
	UserID             string `json:"userId"`
	Points             int    `json:"points"`
	Credits            int    `json:"credits"`
	TotalPointsEarned  int    `json:"totalPointsEarned"`
	TotalCreditsEarned int    `json:"totalCreditsEarned"`
}

// ActivityCompletion is the transient input produced by the game/quiz
// subsystems. It is not persisted by this core.
type ActivityCompletion struct {
	UserID          string
	ActivityType    ActivityType
	CompletionRef   string // unique per completion, guards double-processing
	ScorePercentage int    // 0-100
	TimeTakenSec    int
	TotalQuestions  int
	AnswersCorrect  int
	Answers         []string // answer vector, used for repetition detection
	CompletedAt     time.Time
}

// Perfect reports whether the completion scored 100%.
func (c ActivityCompletion) Perfect() bool { return c.ScorePercentage >= 100 }

// AppliedMultiplier records one bonus in the order it was applied.
type AppliedMultiplier struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

// RewardResult is the outcome of processing one completion.
type RewardResult struct {
	Tier         Tier                `json:"tier"`
	BasePoints   int                 `json:"basePoints"`
	BaseCredits  int                 `json:"baseCredits"`
	Multipliers  []AppliedMultiplier `json:"multipliers"`
	FinalPoints  int                 `json:"finalPoints"`
	FinalCredits int                 `json:"finalCredits"`
	Capped       bool                `json:"capped"`

	// Anti-gaming annotation. Detection is decoupled from suppression:
	// flagged completions are still rewarded here so they stay auditable;
	// callers decide whether to withhold.
	RiskScore float64  `json:"riskScore"`
	Signals   []string `json:"signals,omitempty"`
	Flagged   bool     `json:"flagged"`
}

// DailyActivityCounter aggregates one user's earnings for one UTC day.
type DailyActivityCounter struct {
	UserID             string    `json:"userId"`
	Day                string    `json:"day"` // YYYY-MM-DD
	PointsEarnedToday  int       `json:"pointsEarnedToday"`
	CreditsEarnedToday int       `json:"creditsEarnedToday"`
	AttemptsCount      int       `json:"attemptsCount"`
	LastAttemptAt      time.Time `json:"lastAttemptAt"`
}

// AntiGamingRecord annotates a completion with suspicion heuristics.
type AntiGamingRecord struct {
	UserID        string       `json:"userId"`
	CompletionRef string       `json:"completionRef"`
	ActivityType  ActivityType `json:"activityType"`
	RiskScore     float64      `json:"riskScore"` // 0.0 - 1.0
	Signals       []string     `json:"signals,omitempty"`
	Flagged       bool         `json:"flagged"`
	Reviewed      bool         `json:"reviewed"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Window selects the time range a leaderboard aggregates over.
type Window string

const (
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
	WindowAllTime Window = "all_time"
	// WindowCategory is an open-ended window restricted to one activity
	// type; the filter travels separately from the window name.
	WindowCategory Window = "category"
)

// LeaderboardEntry is a derived read-model row; never a source of truth.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"` // stable positional label in anonymous mode
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Window      Window `json:"window"`
}

// Leaderboard is one projection over a window.
type Leaderboard struct {
	Window         Window             `json:"window"`
	ActivityFilter ActivityType       `json:"activityFilter,omitempty"`
	Entries        []LeaderboardEntry `json:"entries"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// WindowTotal is the projector's input: one user's points inside a window
// and the time of the earliest qualifying transaction (tie-break key).
type WindowTotal struct {
	UserID        string
	DisplayName   string
	Handle        string
	Points        int
	FirstEarnedAt time.Time
}

// DayOf formats t as the counter day key in UTC.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
