package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"wildlife-rewards-service/internal/app"
	"wildlife-rewards-service/internal/domain"
)

// LedgerStore is an in-memory implementation of app.LedgerStore. Writers
// serialize per user, never globally: each user owns a mutex covering their
// balance, daily counter and completion-ref registry, so the cap check and
// the ledger append form one atomic unit.
type LedgerStore struct {
	mu       sync.RWMutex
	users    map[string]*userAccount
	nextID   int64
	profiles map[string]profile
}

type profile struct {
	displayName string
	handle      string
}

type userAccount struct {
	mu           sync.Mutex
	balance      domain.Balance
	transactions []domain.CurrencyTransaction
	counters     map[string]*domain.DailyActivityCounter
	processed    map[string]struct{}
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		users:    make(map[string]*userAccount),
		profiles: make(map[string]profile),
	}
}

// SetProfile registers display metadata used by leaderboard projections.
// Identity itself is owned by an external subsystem; only names live here.
func (s *LedgerStore) SetProfile(userID, displayName, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = profile{displayName: displayName, handle: handle}
}

func (s *LedgerStore) account(userID string) *userAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.users[userID]
	if !ok {
		account = &userAccount{
			balance:   domain.Balance{UserID: userID},
			counters:  make(map[string]*domain.DailyActivityCounter),
			processed: make(map[string]struct{}),
		}
		s.users[userID] = account
	}
	return account
}

func (s *LedgerStore) nextTransactionID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// RecordReward applies a cap-clamped earning grant. The daily counter read,
// the clamp, the ledger append and the balance update all happen under the
// user's lock; a concurrent completion for the same user waits and sees the
// updated counter, so caps hold under concurrency.
func (s *LedgerStore) RecordReward(_ context.Context, grant app.RewardGrant) (app.GrantOutcome, error) {
	if grant.Points < 0 || grant.Credits < 0 {
		return app.GrantOutcome{}, domain.ErrInvalidAmount
	}

	account := s.account(grant.UserID)
	account.mu.Lock()
	defer account.mu.Unlock()

	if grant.CompletionRef != "" {
		if _, seen := account.processed[grant.CompletionRef]; seen {
			return app.GrantOutcome{}, domain.ErrDuplicateCompletion
		}
	}

	day := domain.DayOf(grant.At)
	counter, ok := account.counters[day]
	if !ok {
		counter = &domain.DailyActivityCounter{UserID: grant.UserID, Day: day}
		account.counters[day] = counter
	}

	points, pointsCapped := clamp(grant.Points, grant.PointsCap, counter.PointsEarnedToday)
	credits, creditsCapped := clamp(grant.Credits, grant.CreditsCap, counter.CreditsEarnedToday)

	if points > 0 {
		account.balance.Points += points
		account.balance.TotalPointsEarned += points
		account.transactions = append(account.transactions, domain.CurrencyTransaction{
			ID:              s.nextTransactionID(),
			UserID:          grant.UserID,
			TransactionType: domain.TransactionEarned,
			CurrencyType:    domain.CurrencyPoints,
			Amount:          points,
			BalanceAfter:    account.balance.Points,
			ActivityType:    grant.ActivityType,
			Tier:            grant.Tier,
			ActivityRef:     grant.CompletionRef,
			Metadata:        grant.Metadata,
			CreatedAt:       grant.At,
		})
	}
	if credits > 0 {
		account.balance.Credits += credits
		account.balance.TotalCreditsEarned += credits
		account.transactions = append(account.transactions, domain.CurrencyTransaction{
			ID:              s.nextTransactionID(),
			UserID:          grant.UserID,
			TransactionType: domain.TransactionEarned,
			CurrencyType:    domain.CurrencyCredits,
			Amount:          credits,
			BalanceAfter:    account.balance.Credits,
			ActivityType:    grant.ActivityType,
			Tier:            grant.Tier,
			ActivityRef:     grant.CompletionRef,
			Metadata:        grant.Metadata,
			CreatedAt:       grant.At,
		})
	}

	counter.PointsEarnedToday += points
	counter.CreditsEarnedToday += credits
	counter.AttemptsCount++
	counter.LastAttemptAt = grant.At
	if grant.CompletionRef != "" {
		account.processed[grant.CompletionRef] = struct{}{}
	}

	return app.GrantOutcome{
		Points:  points,
		Credits: credits,
		Capped:  pointsCapped || creditsCapped,
	}, nil
}

// SpendCredits debits credits; the balance check is atomic with the append.
func (s *LedgerStore) SpendCredits(_ context.Context, userID string, amount int, activity domain.ActivityType, metadata map[string]string) (domain.CurrencyTransaction, error) {
	if amount <= 0 {
		return domain.CurrencyTransaction{}, domain.ErrInvalidAmount
	}

	account := s.account(userID)
	account.mu.Lock()
	defer account.mu.Unlock()

	if account.balance.Credits < amount {
		return domain.CurrencyTransaction{}, domain.ErrInsufficientBalance
	}
	account.balance.Credits -= amount

	tx := domain.CurrencyTransaction{
		ID:              s.nextTransactionID(),
		UserID:          userID,
		TransactionType: domain.TransactionSpent,
		CurrencyType:    domain.CurrencyCredits,
		Amount:          -amount,
		BalanceAfter:    account.balance.Credits,
		ActivityType:    activity,
		Tier:            domain.TierNone,
		Metadata:        metadata,
		CreatedAt:       time.Now().UTC(),
	}
	account.transactions = append(account.transactions, tx)
	return tx, nil
}

// ApplyPenalty deducts currency, clamped so the balance never goes negative.
func (s *LedgerStore) ApplyPenalty(_ context.Context, userID string, currency domain.CurrencyType, amount int, reason string) (domain.CurrencyTransaction, error) {
	if amount <= 0 {
		return domain.CurrencyTransaction{}, domain.ErrInvalidAmount
	}

	account := s.account(userID)
	account.mu.Lock()
	defer account.mu.Unlock()

	var balanceAfter, deducted int
	if currency == domain.CurrencyPoints {
		deducted = amount
		if deducted > account.balance.Points {
			deducted = account.balance.Points
		}
		account.balance.Points -= deducted
		balanceAfter = account.balance.Points
	} else {
		deducted = amount
		if deducted > account.balance.Credits {
			deducted = account.balance.Credits
		}
		account.balance.Credits -= deducted
		balanceAfter = account.balance.Credits
	}

	tx := domain.CurrencyTransaction{
		ID:              s.nextTransactionID(),
		UserID:          userID,
		TransactionType: domain.TransactionPenalty,
		CurrencyType:    currency,
		Amount:          -deducted,
		BalanceAfter:    balanceAfter,
		ActivityType:    domain.ActivityType("admin"),
		Tier:            domain.TierNone,
		Metadata:        map[string]string{"reason": reason},
		CreatedAt:       time.Now().UTC(),
	}
	account.transactions = append(account.transactions, tx)
	return tx, nil
}

func (s *LedgerStore) GetBalance(_ context.Context, userID string) (domain.Balance, error) {
	s.mu.RLock()
	account, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return domain.Balance{}, domain.ErrUserNotFound
	}
	account.mu.Lock()
	defer account.mu.Unlock()
	return account.balance, nil
}

func (s *LedgerStore) GetHistory(_ context.Context, userID string, limit, offset int) ([]domain.CurrencyTransaction, error) {
	s.mu.RLock()
	account, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	account.mu.Lock()
	defer account.mu.Unlock()

	// Newest first.
	history := make([]domain.CurrencyTransaction, len(account.transactions))
	copy(history, account.transactions)
	sort.SliceStable(history, func(i, j int) bool { return history[i].ID > history[j].ID })

	if offset >= len(history) {
		return []domain.CurrencyTransaction{}, nil
	}
	history = history[offset:]
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (s *LedgerStore) GetDailyCounter(_ context.Context, userID, day string) (domain.DailyActivityCounter, error) {
	s.mu.RLock()
	account, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return domain.DailyActivityCounter{UserID: userID, Day: day}, nil
	}
	account.mu.Lock()
	defer account.mu.Unlock()
	if counter, ok := account.counters[day]; ok {
		return *counter, nil
	}
	return domain.DailyActivityCounter{UserID: userID, Day: day}, nil
}

// WindowTotals sums earned points per user inside [from, to) along with the
// earliest qualifying transaction time, feeding the leaderboard projector.
// A non-empty activity restricts the sum to that activity type.
func (s *LedgerStore) WindowTotals(_ context.Context, from, to time.Time, activity domain.ActivityType) ([]domain.WindowTotal, error) {
	s.mu.RLock()
	accounts := make(map[string]*userAccount, len(s.users))
	for id, account := range s.users {
		accounts[id] = account
	}
	profiles := make(map[string]profile, len(s.profiles))
	for id, p := range s.profiles {
		profiles[id] = p
	}
	s.mu.RUnlock()

	totals := make([]domain.WindowTotal, 0, len(accounts))
	for userID, account := range accounts {
		account.mu.Lock()
		var total domain.WindowTotal
		total.UserID = userID
		for _, tx := range account.transactions {
			if tx.CurrencyType != domain.CurrencyPoints || tx.TransactionType != domain.TransactionEarned {
				continue
			}
			if activity != "" && tx.ActivityType != activity {
				continue
			}
			if !from.IsZero() && tx.CreatedAt.Before(from) {
				continue
			}
			if tx.CreatedAt.After(to) || tx.CreatedAt.Equal(to) {
				continue
			}
			if total.Points == 0 || tx.CreatedAt.Before(total.FirstEarnedAt) {
				total.FirstEarnedAt = tx.CreatedAt
			}
			total.Points += tx.Amount
		}
		account.mu.Unlock()
		if total.Points <= 0 {
			continue
		}
		if p, ok := profiles[userID]; ok {
			total.DisplayName = p.displayName
			total.Handle = p.handle
		}
		if total.Handle == "" {
			total.Handle = userID
		}
		totals = append(totals, total)
	}
	return totals, nil
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
