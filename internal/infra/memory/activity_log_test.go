package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wildlife-rewards-service/internal/domain"
)

func logAttempt(t *testing.T, l *ActivityLog, userID string, activity domain.ActivityType, score int, at time.Time, answers ...string) {
	t.Helper()
	err := l.LogCompletion(context.Background(), domain.ActivityCompletion{
		UserID:          userID,
		ActivityType:    activity,
		CompletionRef:   fmt.Sprintf("%s-%d", userID, at.UnixNano()),
		ScorePercentage: score,
		Answers:         answers,
		CompletedAt:     at,
	})
	if err != nil {
		t.Fatalf("log completion: %v", err)
	}
}

func TestAttemptHistoryRollingWindows(t *testing.T) {
	l := NewActivityLog()
	at := noon

	logAttempt(t, l, "u1", domain.ActivityQuiz, 100, at.Add(-30*time.Minute), "a", "b")
	logAttempt(t, l, "u1", domain.ActivityQuiz, 80, at.Add(-50*time.Minute))
	// Outside the hour but inside the day.
	logAttempt(t, l, "u1", domain.ActivityQuiz, 100, at.Add(-3*time.Hour))
	// Outside the day entirely.
	logAttempt(t, l, "u1", domain.ActivityQuiz, 100, at.Add(-30*time.Hour))
	// Different activity type never counts.
	logAttempt(t, l, "u1", domain.ActivityMythsFacts, 100, at.Add(-10*time.Minute))
	// Later attempts are invisible when evaluating an earlier completion.
	logAttempt(t, l, "u1", domain.ActivityQuiz, 100, at.Add(10*time.Minute))

	history, err := l.AttemptHistory(context.Background(), "u1", domain.ActivityQuiz, at)
	if err != nil {
		t.Fatalf("attempt history: %v", err)
	}
	if history.AttemptsLastHour != 2 {
		t.Fatalf("expected 2 attempts in the hour, got %d", history.AttemptsLastHour)
	}
	if history.PerfectScoresToday != 2 {
		t.Fatalf("expected 2 perfects in the day, got %d", history.PerfectScoresToday)
	}
	if len(history.RecentAnswers) != 1 || history.RecentAnswers[0][0] != "a" {
		t.Fatalf("unexpected recent answers %v", history.RecentAnswers)
	}
}

func TestStreakDaysCountsConsecutiveDays(t *testing.T) {
	l := NewActivityLog()
	at := noon

	for i := 1; i <= 3; i++ {
		logAttempt(t, l, "u1", domain.ActivityQuiz, 80, at.AddDate(0, 0, -i))
	}

	// No attempt yet today: the streak ends yesterday and counts 3.
	days, known, err := l.StreakDays(context.Background(), "u1", at)
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if !known || days != 3 {
		t.Fatalf("expected 3-day streak, got %d known=%v", days, known)
	}

	// An attempt today extends it to 4.
	logAttempt(t, l, "u1", domain.ActivityQuiz, 80, at.Add(-time.Hour))
	days, _, err = l.StreakDays(context.Background(), "u1", at)
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if days != 4 {
		t.Fatalf("expected 4-day streak, got %d", days)
	}
}

func TestStreakDaysBrokenByGap(t *testing.T) {
	l := NewActivityLog()
	at := noon

	logAttempt(t, l, "u1", domain.ActivityQuiz, 80, at.AddDate(0, 0, -1))
	logAttempt(t, l, "u1", domain.ActivityQuiz, 80, at.AddDate(0, 0, -3))
	logAttempt(t, l, "u1", domain.ActivityQuiz, 80, at.AddDate(0, 0, -4))

	days, known, err := l.StreakDays(context.Background(), "u1", at)
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if !known || days != 1 {
		t.Fatalf("gap must break the streak: got %d known=%v", days, known)
	}
}

func TestStreakUnknownWithoutHistory(t *testing.T) {
	l := NewActivityLog()
	days, known, err := l.StreakDays(context.Background(), "ghost", noon)
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if known || days != 0 {
		t.Fatalf("expected unknown streak, got %d known=%v", days, known)
	}
}

func TestFlaggedRecordsAndReview(t *testing.T) {
	l := NewActivityLog()
	ctx := context.Background()

	records := []domain.AntiGamingRecord{
		{UserID: "u1", CompletionRef: "r1", Flagged: true, RiskScore: 0.9},
		{UserID: "u1", CompletionRef: "r2", Flagged: false, RiskScore: 0.2},
		{UserID: "u2", CompletionRef: "r3", Flagged: true, RiskScore: 0.8},
	}
	for _, r := range records {
		if err := l.SaveRecord(ctx, r); err != nil {
			t.Fatalf("save record: %v", err)
		}
	}

	flagged := l.FlaggedRecords()
	if len(flagged) != 2 {
		t.Fatalf("expected 2 records awaiting review, got %d", len(flagged))
	}

	l.MarkReviewed("r1")
	flagged = l.FlaggedRecords()
	if len(flagged) != 1 || flagged[0].CompletionRef != "r3" {
		t.Fatalf("expected only r3 pending, got %+v", flagged)
	}
}
