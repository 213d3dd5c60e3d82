package app

import (
	"context"
	"log"
	"strconv"
	"time"

	"wildlife-rewards-service/internal/domain"
)

// RewardGrant is the write request the ledger store applies atomically.
type RewardGrant struct {
	UserID        string
	CompletionRef string
	ActivityType  domain.ActivityType
	Tier          domain.Tier
	Points        int
	Credits       int
	PointsCap     int // 0 means uncapped
	CreditsCap    int
	At            time.Time
	Metadata      map[string]string
}

// GrantOutcome reports what the ledger actually credited after cap clamping.
type GrantOutcome struct {
	Points  int
	Credits int
	Capped  bool
}

// LedgerStore abstracts the currency ledger (in-memory, Postgres, ...).
// Every balance mutation in the system goes through it; implementations
// must serialize writers per user and keep the cap check, the ledger append
// and the balance update in one atomic unit.
type LedgerStore interface {
	RecordReward(ctx context.Context, grant RewardGrant) (GrantOutcome, error)
	SpendCredits(ctx context.Context, userID string, amount int, activity domain.ActivityType, metadata map[string]string) (domain.CurrencyTransaction, error)
	ApplyPenalty(ctx context.Context, userID string, currency domain.CurrencyType, amount int, reason string) (domain.CurrencyTransaction, error)
	GetBalance(ctx context.Context, userID string) (domain.Balance, error)
	GetHistory(ctx context.Context, userID string, limit, offset int) ([]domain.CurrencyTransaction, error)
	GetDailyCounter(ctx context.Context, userID, day string) (domain.DailyActivityCounter, error)
	// WindowTotals aggregates earned points per user inside [from, to); an
	// empty activity means all activity types.
	WindowTotals(ctx context.Context, from, to time.Time, activity domain.ActivityType) ([]domain.WindowTotal, error)
}

// ActivityLog feeds the anti-gaming monitor and the streak bonus, and keeps
// the monitor's records for admin review.
type ActivityLog interface {
	AttemptHistory(ctx context.Context, userID string, activity domain.ActivityType, at time.Time) (*ActivityHistory, error)
	StreakDays(ctx context.Context, userID string, at time.Time) (int, bool, error)
	LogCompletion(ctx context.Context, completion domain.ActivityCompletion) error
	SaveRecord(ctx context.Context, record domain.AntiGamingRecord) error
}

// SettingsRepository supplies the runtime reward configuration snapshot.
type SettingsRepository interface {
	GetConfig(ctx context.Context) (domain.RewardConfig, error)
}

// LeaderboardCache is an optional read-through cache for projections.
type LeaderboardCache interface {
	Get(ctx context.Context, window domain.Window, activity domain.ActivityType) (domain.Leaderboard, bool)
	Set(ctx context.Context, lb domain.Leaderboard)
}

// RewardService wires the ledger, calculator, monitor and projector into
// the use cases exposed to the surrounding service.
type RewardService struct {
	ledger   LedgerStore
	activity ActivityLog
	settings SettingsRepository
	lbCache  LeaderboardCache
	feed     *leaderboardFeed
	now      func() time.Time
}

func NewRewardService(ledger LedgerStore, activity ActivityLog, settings SettingsRepository) *RewardService {
	return &RewardService{
		ledger:   ledger,
		activity: activity,
		settings: settings,
		feed:     newLeaderboardFeed(),
		now:      time.Now,
	}
}

// WithLeaderboardCache attaches an optional projection cache.
func (s *RewardService) WithLeaderboardCache(cache LeaderboardCache) *RewardService {
	s.lbCache = cache
	return s
}

// WithClock is test-only for deterministic timestamps.
func (s *RewardService) WithClock(now func() time.Time) *RewardService {
	s.now = now
	return s
}

// CalculateAndRecordReward processes one activity completion end to end:
// anti-gaming annotation, tier and multiplier calculation, cap-clamped
// ledger persistence, and a leaderboard broadcast to live subscribers.
//
// Configuration and ledger failures fail the whole operation - no partial
// reward is ever recorded. Missing optional context (streak history,
// attempt history) degrades gracefully per the heuristics' contracts.
func (s *RewardService) CalculateAndRecordReward(ctx context.Context, completion domain.ActivityCompletion) (domain.RewardResult, error) {
	cfg, err := s.settings.GetConfig(ctx)
	if err != nil {
		return domain.RewardResult{}, err
	}

	history, err := s.activity.AttemptHistory(ctx, completion.UserID, completion.ActivityType, completion.CompletedAt)
	if err != nil {
		// The monitor degrades to a zero score without history.
		history = nil
	}
	record := EvaluateCompletion(completion, history, cfg, completion.CompletedAt)
	if err := s.activity.SaveRecord(ctx, record); err != nil {
		log.Printf("anti-gaming record not saved for %s: %v", completion.CompletionRef, err)
	}

	user := UserContext{}
	if days, known, err := s.activity.StreakDays(ctx, completion.UserID, completion.CompletedAt); err == nil {
		user.StreakDays = days
		user.StreakKnown = known
	}

	result, err := CalculateReward(completion, user, cfg)
	if err != nil {
		return domain.RewardResult{}, err
	}
	result.RiskScore = record.RiskScore
	result.Signals = record.Signals
	result.Flagged = record.Flagged

	if result.Tier == domain.TierNone {
		// Below the lowest threshold: the attempt is still logged so the
		// monitor's frequency heuristics see it, but nothing is credited.
		if err := s.activity.LogCompletion(ctx, completion); err != nil {
			log.Printf("completion log failed for %s: %v", completion.CompletionRef, err)
		}
		return result, nil
	}

	activityCfg := cfg.Activities[completion.ActivityType]
	outcome, err := s.ledger.RecordReward(ctx, RewardGrant{
		UserID:        completion.UserID,
		CompletionRef: completion.CompletionRef,
		ActivityType:  completion.ActivityType,
		Tier:          result.Tier,
		Points:        result.FinalPoints,
		Credits:       result.FinalCredits,
		PointsCap:     activityCfg.DailyPointsCap,
		CreditsCap:    activityCfg.DailyCreditsCap,
		At:            completion.CompletedAt,
		Metadata:      map[string]string{"score": strconv.Itoa(completion.ScorePercentage)},
	})
	if err != nil {
		return domain.RewardResult{}, err
	}
	result.FinalPoints = outcome.Points
	result.FinalCredits = outcome.Credits
	result.Capped = outcome.Capped

	if err := s.activity.LogCompletion(ctx, completion); err != nil {
		log.Printf("completion log failed for %s: %v", completion.CompletionRef, err)
	}

	s.publishLeaderboard(ctx, cfg)
	return result, nil
}

// GetBalance returns the cached dual-currency balance for a user.
func (s *RewardService) GetBalance(ctx context.Context, userID string) (domain.Balance, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// GetTransactionHistory returns ledger rows for a user, newest first.
func (s *RewardService) GetTransactionHistory(ctx context.Context, userID string, limit, offset int) ([]domain.CurrencyTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.ledger.GetHistory(ctx, userID, limit, offset)
}

// GetDailyAllowanceRemaining reports how many points and credits the user
// can still earn today for the given activity type. A cap of zero or less
// means the activity is uncapped, reported as -1.
func (s *RewardService) GetDailyAllowanceRemaining(ctx context.Context, userID string, activity domain.ActivityType, day time.Time) (points, credits int, err error) {
	cfg, err := s.settings.GetConfig(ctx)
	if err != nil {
		return 0, 0, err
	}
	activityCfg, ok := cfg.Activities[activity]
	if !ok {
		return 0, 0, domain.ErrConfigurationMissing
	}
	counter, err := s.ledger.GetDailyCounter(ctx, userID, domain.DayOf(day))
	if err != nil {
		return 0, 0, err
	}
	points = remaining(activityCfg.DailyPointsCap, counter.PointsEarnedToday)
	credits = remaining(activityCfg.DailyCreditsCap, counter.CreditsEarnedToday)
	return points, credits, nil
}

// SpendCredits debits the user's credit balance through the ledger.
func (s *RewardService) SpendCredits(ctx context.Context, userID string, amount int, activity domain.ActivityType, metadata map[string]string) (domain.CurrencyTransaction, error) {
	return s.ledger.SpendCredits(ctx, userID, amount, activity, metadata)
}

// ApplyPenalty deducts currency for a rule violation, clamped at zero.
func (s *RewardService) ApplyPenalty(ctx context.Context, userID string, currency domain.CurrencyType, amount int, reason string) (domain.CurrencyTransaction, error) {
	return s.ledger.ApplyPenalty(ctx, userID, currency, amount, reason)
}

// GetLeaderboard projects the ranking for a window with privacy redaction.
// A non-empty activity restricts the ranking to points earned from that
// activity type (the category leaderboard).
func (s *RewardService) GetLeaderboard(ctx context.Context, window domain.Window, activity domain.ActivityType, topN int) (domain.Leaderboard, error) {
	// The cache holds the full ranked projection; the caller's topN is a
	// view applied after the read so one entry serves every truncation.
	if s.lbCache != nil {
		if lb, ok := s.lbCache.Get(ctx, window, activity); ok {
			return truncateTopN(lb, topN), nil
		}
	}

	cfg, err := s.settings.GetConfig(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	now := s.now()
	from, to := WindowRange(window, now)
	totals, err := s.ledger.WindowTotals(ctx, from, to, activity)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	lb := ProjectLeaderboard(totals, window, cfg.Leaderboard, 0, now)
	lb.ActivityFilter = activity
	if s.lbCache != nil {
		s.lbCache.Set(ctx, lb)
	}
	return truncateTopN(lb, topN), nil
}

func truncateTopN(lb domain.Leaderboard, topN int) domain.Leaderboard {
	if topN > 0 && len(lb.Entries) > topN {
		lb.Entries = lb.Entries[:topN]
	}
	return lb
}

// SubscribeLeaderboard returns a channel receiving a fresh weekly projection
// after every recorded reward. The caller must invoke cancel to avoid leaks.
func (s *RewardService) SubscribeLeaderboard() (<-chan domain.Leaderboard, func()) {
	return s.feed.subscribe()
}

// publishLeaderboard recomputes the weekly projection and fans it out.
// Best effort: a failed projection never fails the completion.
func (s *RewardService) publishLeaderboard(ctx context.Context, cfg domain.RewardConfig) {
	now := s.now()
	from, to := WindowRange(domain.WindowWeekly, now)
	totals, err := s.ledger.WindowTotals(ctx, from, to, "")
	if err != nil {
		log.Printf("leaderboard projection skipped: %v", err)
		return
	}
	lb := ProjectLeaderboard(totals, domain.WindowWeekly, cfg.Leaderboard, 0, now)
	if s.lbCache != nil {
		s.lbCache.Set(ctx, lb)
	}
	s.feed.broadcast(lb)
}

// remaining mirrors the ledger stores' cap semantics: a limit of zero or
// less never clamps a grant, so the allowance is unlimited (-1).
func remaining(limit, earned int) int {
	if limit <= 0 {
		return -1
	}
	if earned >= limit {
		return 0
	}
	return limit - earned
}
