package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wildlife-rewards-service/internal/app"
	"wildlife-rewards-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ActivityLog persists attempt history and anti-gaming records.
type ActivityLog struct {
	pool *pgxpool.Pool
}

func NewActivityLog(pool *pgxpool.Pool) *ActivityLog {
	return &ActivityLog{pool: pool}
}

func (l *ActivityLog) LogCompletion(ctx context.Context, completion domain.ActivityCompletion) error {
	answers, _ := json.Marshal(completion.Answers)
	_, err := l.pool.Exec(ctx, `
		INSERT INTO activity_attempts (user_id, activity_type, completed_at, perfect, answers)
		VALUES ($1, $2, $3, $4, $5)`,
		completion.UserID, completion.ActivityType, completion.CompletedAt,
		completion.Perfect(), answers)
	if err != nil {
		return fmt.Errorf("log completion: %w", err)
	}
	return nil
}

func (l *ActivityLog) AttemptHistory(ctx context.Context, userID string, activity domain.ActivityType, at time.Time) (*app.ActivityHistory, error) {
	history := &app.ActivityHistory{}

	err := l.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE completed_at > $3),
		       COUNT(*) FILTER (WHERE perfect AND completed_at > $4)
		FROM activity_attempts
		WHERE user_id = $1 AND activity_type = $2 AND completed_at <= $5`,
		userID, activity, at.Add(-time.Hour), at.Add(-24*time.Hour), at).
		Scan(&history.AttemptsLastHour, &history.PerfectScoresToday)
	if err != nil {
		return nil, fmt.Errorf("attempt counts: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT answers FROM activity_attempts
		WHERE user_id = $1 AND activity_type = $2
		  AND completed_at > $3 AND completed_at <= $4
		  AND answers IS NOT NULL AND answers <> 'null'
		ORDER BY completed_at DESC
		LIMIT 50`, userID, activity, at.Add(-24*time.Hour), at)
	if err != nil {
		return nil, fmt.Errorf("recent answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan answers: %w", err)
		}
		var answers []string
		if err := json.Unmarshal(raw, &answers); err != nil || len(answers) == 0 {
			continue
		}
		history.RecentAnswers = append(history.RecentAnswers, answers)
	}
	return history, rows.Err()
}

// StreakDays walks distinct activity days backwards from the day of at.
func (l *ActivityLog) StreakDays(ctx context.Context, userID string, at time.Time) (int, bool, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT DISTINCT (completed_at AT TIME ZONE 'UTC')::date
		FROM activity_attempts
		WHERE user_id = $1 AND completed_at <= $2 AND completed_at > $3
		ORDER BY 1 DESC`, userID, at, at.AddDate(0, 0, -100))
	if err != nil {
		return 0, false, fmt.Errorf("streak days: %w", err)
	}
	defer rows.Close()

	days := make(map[string]bool)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return 0, false, fmt.Errorf("scan streak day: %w", err)
		}
		days[domain.DayOf(day)] = true
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if len(days) == 0 {
		return 0, false, nil
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

func (l *ActivityLog) SaveRecord(ctx context.Context, record domain.AntiGamingRecord) error {
	signals, _ := json.Marshal(record.Signals)
	_, err := l.pool.Exec(ctx, `
		INSERT INTO anti_gaming_records
			(user_id, completion_ref, activity_type, risk_score, signals, flagged, reviewed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.UserID, record.CompletionRef, record.ActivityType, record.RiskScore,
		signals, record.Flagged, record.Reviewed, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("save anti-gaming record: %w", err)
	}
	return nil
}

// FlaggedRecords lists unreviewed flagged completions for admin review.
func (l *ActivityLog) FlaggedRecords(ctx context.Context, limit int) ([]domain.AntiGamingRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT user_id, completion_ref, activity_type, risk_score, signals, flagged, reviewed, created_at
		FROM anti_gaming_records
		WHERE flagged AND NOT reviewed
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load flagged records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AntiGamingRecord, 0, limit)
	for rows.Next() {
		var record domain.AntiGamingRecord
		var signals []byte
		if err := rows.Scan(&record.UserID, &record.CompletionRef, &record.ActivityType,
			&record.RiskScore, &signals, &record.Flagged, &record.Reviewed, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan flagged record: %w", err)
		}
		_ = json.Unmarshal(signals, &record.Signals)
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkReviewed clears a flagged record after admin review.
func (l *ActivityLog) MarkReviewed(ctx context.Context, completionRef string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE anti_gaming_records SET reviewed = TRUE WHERE completion_ref = $1`,
		completionRef)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	return nil
}
