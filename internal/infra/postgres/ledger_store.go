package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wildlife-rewards-service/internal/app"
	"wildlife-rewards-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LedgerStore is the Postgres implementation of app.LedgerStore. Writers
// serialize per user through row-level locks: every mutation runs in a
// transaction that takes FOR UPDATE on the user's balance row, so the cap
// check, the ledger append and the balance update are one atomic unit and
// two tabs completing at once cannot exceed a daily cap.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// UpsertProfile registers display metadata for leaderboard projections.
func (s *LedgerStore) UpsertProfile(ctx context.Context, userID, displayName, handle string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_balances (user_id, display_name, handle)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET display_name = $2, handle = $3`,
		userID, displayName, handle)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *LedgerStore) RecordReward(ctx context.Context, grant app.RewardGrant) (app.GrantOutcome, error) {
	if grant.Points < 0 || grant.Credits < 0 {
		return app.GrantOutcome{}, domain.ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return app.GrantOutcome{}, fmt.Errorf("begin reward tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, grant.UserID)
	if err != nil {
		return app.GrantOutcome{}, err
	}

	if grant.CompletionRef != "" {
		tag, err := tx.Exec(ctx, `
			INSERT INTO processed_completions (completion_ref, user_id, processed_at)
			VALUES ($1, $2, $3) ON CONFLICT (completion_ref) DO NOTHING`,
			grant.CompletionRef, grant.UserID, grant.At)
		if err != nil {
			return app.GrantOutcome{}, fmt.Errorf("register completion: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return app.GrantOutcome{}, domain.ErrDuplicateCompletion
		}
	}

	day := domain.DayOf(grant.At)
	var pointsToday, creditsToday int
	err = tx.QueryRow(ctx, `
		INSERT INTO daily_activity_counters (user_id, day, last_attempt_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, day) DO UPDATE SET last_attempt_at = $3
		RETURNING points_earned_today, credits_earned_today`,
		grant.UserID, day, grant.At).Scan(&pointsToday, &creditsToday)
	if err != nil {
		return app.GrantOutcome{}, fmt.Errorf("load daily counter: %w", err)
	}

	points, pointsCapped := clamp(grant.Points, grant.PointsCap, pointsToday)
	credits, creditsCapped := clamp(grant.Credits, grant.CreditsCap, creditsToday)

	metadata, _ := json.Marshal(grant.Metadata)

	if points > 0 {
		balance.Points += points
		balance.TotalPointsEarned += points
		if err := insertTransaction(ctx, tx, domain.CurrencyTransaction{
			UserID:          grant.UserID,
			TransactionType: domain.TransactionEarned,
			CurrencyType:    domain.CurrencyPoints,
			Amount:          points,
			BalanceAfter:    balance.Points,
			ActivityType:    grant.ActivityType,
			Tier:            grant.Tier,
			ActivityRef:     grant.CompletionRef,
			CreatedAt:       grant.At,
		}, metadata); err != nil {
			return app.GrantOutcome{}, err
		}
	}
	if credits > 0 {
		balance.Credits += credits
		balance.TotalCreditsEarned += credits
		if err := insertTransaction(ctx, tx, domain.CurrencyTransaction{
			UserID:          grant.UserID,
			TransactionType: domain.TransactionEarned,
			CurrencyType:    domain.CurrencyCredits,
			Amount:          credits,
			BalanceAfter:    balance.Credits,
			ActivityType:    grant.ActivityType,
			Tier:            grant.Tier,
			ActivityRef:     grant.CompletionRef,
			CreatedAt:       grant.At,
		}, metadata); err != nil {
			return app.GrantOutcome{}, err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_balances
		SET points = $2, credits = $3, total_points_earned = $4, total_credits_earned = $5
		WHERE user_id = $1`,
		grant.UserID, balance.Points, balance.Credits, balance.TotalPointsEarned, balance.TotalCreditsEarned); err != nil {
		return app.GrantOutcome{}, fmt.Errorf("update balance: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE daily_activity_counters
		SET points_earned_today = points_earned_today + $3,
		    credits_earned_today = credits_earned_today + $4,
		    attempts_count = attempts_count + 1,
		    last_attempt_at = $5
		WHERE user_id = $1 AND day = $2`,
		grant.UserID, day, points, credits, grant.At); err != nil {
		return app.GrantOutcome{}, fmt.Errorf("update daily counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return app.GrantOutcome{}, fmt.Errorf("commit reward tx: %w", err)
	}
	return app.GrantOutcome{Points: points, Credits: credits, Capped: pointsCapped || creditsCapped}, nil
}

func (s *LedgerStore) SpendCredits(ctx context.Context, userID string, amount int, activity domain.ActivityType, metadata map[string]string) (domain.CurrencyTransaction, error) {
	if amount <= 0 {
		return domain.CurrencyTransaction{}, domain.ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.CurrencyTransaction{}, fmt.Errorf("begin spend tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return domain.CurrencyTransaction{}, err
	}
	if balance.Credits < amount {
		return domain.CurrencyTransaction{}, domain.ErrInsufficientBalance
	}
	balance.Credits -= amount

	row := domain.CurrencyTransaction{
		UserID:          userID,
		TransactionType: domain.TransactionSpent,
		CurrencyType:    domain.CurrencyCredits,
		Amount:          -amount,
		BalanceAfter:    balance.Credits,
		ActivityType:    activity,
		Tier:            domain.TierNone,
		Metadata:        metadata,
		CreatedAt:       time.Now().UTC(),
	}
	meta, _ := json.Marshal(metadata)
	if err := insertTransaction(ctx, tx, row, meta); err != nil {
		return domain.CurrencyTransaction{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE user_balances SET credits = $2 WHERE user_id = $1`,
		userID, balance.Credits); err != nil {
		return domain.CurrencyTransaction{}, fmt.Errorf("update balance: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CurrencyTransaction{}, fmt.Errorf("commit spend tx: %w", err)
	}
	return row, nil
}

func (s *LedgerStore) ApplyPenalty(ctx context.Context, userID string, currency domain.CurrencyType, amount int, reason string) (domain.CurrencyTransaction, error) {
	if amount <= 0 {
		return domain.CurrencyTransaction{}, domain.ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.CurrencyTransaction{}, fmt.Errorf("begin penalty tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return domain.CurrencyTransaction{}, err
	}

	// Penalties are bounded: the balance never goes negative.
	deducted := amount
	var after int
	if currency == domain.CurrencyPoints {
		if deducted > balance.Points {
			deducted = balance.Points
		}
		balance.Points -= deducted
		after = balance.Points
	} else {
		if deducted > balance.Credits {
			deducted = balance.Credits
		}
		balance.Credits -= deducted
		after = balance.Credits
	}

	row := domain.CurrencyTransaction{
		UserID:          userID,
		TransactionType: domain.TransactionPenalty,
		CurrencyType:    currency,
		Amount:          -deducted,
		BalanceAfter:    after,
		ActivityType:    domain.ActivityType("admin"),
		Tier:            domain.TierNone,
		Metadata:        map[string]string{"reason": reason},
		CreatedAt:       time.Now().UTC(),
	}
	meta, _ := json.Marshal(row.Metadata)
	if err := insertTransaction(ctx, tx, row, meta); err != nil {
		return domain.CurrencyTransaction{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE user_balances SET points = $2, credits = $3 WHERE user_id = $1`,
		userID, balance.Points, balance.Credits); err != nil {
		return domain.CurrencyTransaction{}, fmt.Errorf("update balance: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CurrencyTransaction{}, fmt.Errorf("commit penalty tx: %w", err)
	}
	return row, nil
}

func (s *LedgerStore) GetBalance(ctx context.Context, userID string) (domain.Balance, error) {
	var b domain.Balance
	b.UserID = userID
	err := s.pool.QueryRow(ctx, `
		SELECT points, credits, total_points_earned, total_credits_earned
		FROM user_balances WHERE user_id = $1`, userID).
		Scan(&b.Points, &b.Credits, &b.TotalPointsEarned, &b.TotalCreditsEarned)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Balance{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Balance{}, fmt.Errorf("load balance: %w", err)
	}
	return b, nil
}

func (s *LedgerStore) GetHistory(ctx context.Context, userID string, limit, offset int) ([]domain.CurrencyTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, transaction_type, currency_type, amount, balance_after,
		       activity_type, tier, COALESCE(activity_ref, ''), metadata, created_at
		FROM currency_transactions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.CurrencyTransaction, 0, limit)
	for rows.Next() {
		tx := domain.CurrencyTransaction{UserID: userID}
		var meta []byte
		if err := rows.Scan(&tx.ID, &tx.TransactionType, &tx.CurrencyType, &tx.Amount,
			&tx.BalanceAfter, &tx.ActivityType, &tx.Tier, &tx.ActivityRef, &meta, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &tx.Metadata)
		}
		history = append(history, tx)
	}
	return history, rows.Err()
}

func (s *LedgerStore) GetDailyCounter(ctx context.Context, userID, day string) (domain.DailyActivityCounter, error) {
	counter := domain.DailyActivityCounter{UserID: userID, Day: day}
	err := s.pool.QueryRow(ctx, `
		SELECT points_earned_today, credits_earned_today, attempts_count, last_attempt_at
		FROM daily_activity_counters WHERE user_id = $1 AND day = $2`, userID, day).
		Scan(&counter.PointsEarnedToday, &counter.CreditsEarnedToday, &counter.AttemptsCount, &counter.LastAttemptAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return counter, nil
	}
	if err != nil {
		return domain.DailyActivityCounter{}, fmt.Errorf("load daily counter: %w", err)
	}
	return counter, nil
}

func (s *LedgerStore) WindowTotals(ctx context.Context, from, to time.Time, activity domain.ActivityType) ([]domain.WindowTotal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.user_id,
		       COALESCE(b.display_name, ''),
		       COALESCE(NULLIF(b.handle, ''), t.user_id),
		       SUM(t.amount)::int,
		       MIN(t.created_at)
		FROM currency_transactions t
		LEFT JOIN user_balances b ON b.user_id = t.user_id
		WHERE t.currency_type = 'points'
		  AND t.transaction_type = 'earned'
		  AND t.created_at >= $1 AND t.created_at < $2
		  AND ($3 = '' OR t.activity_type = $3)
		GROUP BY t.user_id, b.display_name, b.handle
		HAVING SUM(t.amount) > 0`, from, to, string(activity))
	if err != nil {
		return nil, fmt.Errorf("window totals: %w", err)
	}
	defer rows.Close()

	totals := make([]domain.WindowTotal, 0)
	for rows.Next() {
		var total domain.WindowTotal
		if err := rows.Scan(&total.UserID, &total.DisplayName, &total.Handle,
			&total.Points, &total.FirstEarnedAt); err != nil {
			return nil, fmt.Errorf("scan window total: %w", err)
		}
		totals = append(totals, total)
	}
	return totals, rows.Err()
}

// lockBalance takes FOR UPDATE on the user's balance row, creating it on
// first contact.
func lockBalance(ctx context.Context, tx pgx.Tx, userID string) (domain.Balance, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_balances (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return domain.Balance{}, fmt.Errorf("ensure balance row: %w", err)
	}
	b := domain.Balance{UserID: userID}
	err := tx.QueryRow(ctx, `
		SELECT points, credits, total_points_earned, total_credits_earned
		FROM user_balances WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&b.Points, &b.Credits, &b.TotalPointsEarned, &b.TotalCreditsEarned)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("lock balance row: %w", err)
	}
	return b, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, row domain.CurrencyTransaction, metadata []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO currency_transactions
			(user_id, transaction_type, currency_type, amount, balance_after,
			 activity_type, tier, activity_ref, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)`,
		row.UserID, row.TransactionType, row.CurrencyType, row.Amount, row.BalanceAfter,
		row.ActivityType, row.Tier, row.ActivityRef, metadata, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func clamp(amount, limit, earned int) (int, bool) {
	if limit <= 0 || amount <= 0 {
		return amount, false
	}
	allowance := limit - earned
	if allowance < 0 {
		allowance = 0
	}
	if amount > allowance {
		return allowance, true
	}
	return amount, false
}
