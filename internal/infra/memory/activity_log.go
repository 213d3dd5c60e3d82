package memory

import (
	"context"
	"sync"
	"time"

	"wildlife-rewards-service/internal/app"
	"wildlife-rewards-service/internal/domain"
)

// ActivityLog is an in-memory implementation of app.ActivityLog. It keeps
// per-user attempt history for the anti-gaming rolling windows and the
// streak bonus, plus the monitor's records for admin review.
type ActivityLog struct {
	mu       sync.RWMutex
	attempts map[string][]attempt
	records  []domain.AntiGamingRecord

	// retain limits how many attempts are kept per user; the heuristics
	// only look back a day, so a short tail is enough.
	retain int
}

type attempt struct {
	activity domain.ActivityType
	at       time.Time
	perfect  bool
	answers  []string
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{
		attempts: make(map[string][]attempt),
		retain:   200,
	}
}

func (l *ActivityLog) LogCompletion(_ context.Context, completion domain.ActivityCompletion) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	answers := make([]string, len(completion.Answers))
	copy(answers, completion.Answers)

	history := append(l.attempts[completion.UserID], attempt{
		activity: completion.ActivityType,
		at:       completion.CompletedAt,
		perfect:  completion.Perfect(),
		answers:  answers,
	})
	if len(history) > l.retain {
		history = history[len(history)-l.retain:]
	}
	l.attempts[completion.UserID] = history
	return nil
}

// AttemptHistory evaluates the monitor's rolling windows relative to at.
func (l *ActivityLog) AttemptHistory(_ context.Context, userID string, activity domain.ActivityType, at time.Time) (*app.ActivityHistory, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := &app.ActivityHistory{}
	hourAgo := at.Add(-time.Hour)
	dayAgo := at.Add(-24 * time.Hour)

	for _, a := range l.attempts[userID] {
		if a.activity != activity || a.at.After(at) {
			continue
		}
		if a.at.After(hourAgo) {
			history.AttemptsLastHour++
		}
		if a.perfect && a.at.After(dayAgo) {
			history.PerfectScoresToday++
		}
		if len(a.answers) > 0 && a.at.After(dayAgo) {
			history.RecentAnswers = append(history.RecentAnswers, a.answers)
		}
	}
	return history, nil
}

// StreakDays counts consecutive UTC days with at least one completion,
// ending at the day of at (or the day before, for the first activity of a
// new day continuing yesterday's streak).
func (l *ActivityLog) StreakDays(_ context.Context, userID string, at time.Time) (int, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	attempts, ok := l.attempts[userID]
	if !ok {
		return 0, false, nil
	}

	days := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		if !a.at.After(at) {
			days[domain.DayOf(a.at)] = true
		}
	}

	day := at.UTC().Truncate(24 * time.Hour)
	if !days[domain.DayOf(day)] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for days[domain.DayOf(day)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak, true, nil
}

func (l *ActivityLog) SaveRecord(_ context.Context, record domain.AntiGamingRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

// FlaggedRecords returns monitor records awaiting admin review.
func (l *ActivityLog) FlaggedRecords() []domain.AntiGamingRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	flagged := make([]domain.AntiGamingRecord, 0)
	for _, r := range l.records {
		if r.Flagged && !r.Reviewed {
			flagged = append(flagged, r)
		}
	}
	return flagged
}

// MarkReviewed clears a flagged record after admin review.
func (l *ActivityLog) MarkReviewed(completionRef string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].CompletionRef == completionRef {
			l.records[i].Reviewed = true
		}
	}
}
