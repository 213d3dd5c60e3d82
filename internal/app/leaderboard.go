package app

import (
	"fmt"
	"sort"
	"time"

	"wildlife-rewards-service/internal/domain"
)

// WindowRange resolves a leaderboard window to [from, to) boundaries,
// calendar-aligned in UTC. A weekly or monthly "reset" moves the window
// start marker; ledger rows are never deleted.
func WindowRange(window domain.Window, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch window {
	case domain.WindowWeekly:
		// ISO-style week starting Monday.
		day := now.Truncate(24 * time.Hour)
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case domain.WindowMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, now.AddDate(0, 0, 1)
	}
}

// ProjectLeaderboard ranks window totals and applies privacy redaction at
// projection time; nothing redacted is ever stored.
//
// Ranking key: points in the window, descending. Ties break toward the user
// whose earliest qualifying transaction is older. Ranks are assigned over
// the full ordered set and topN truncation happens afterwards, keeping rank
// numbers correct relative to the whole field.
func ProjectLeaderboard(totals []domain.WindowTotal, window domain.Window, cfg domain.LeaderboardConfig, topN int, now time.Time) domain.Leaderboard {
	lb := domain.Leaderboard{Window: window, UpdatedAt: now}
	if !cfg.PublicEnabled {
		lb.Entries = []domain.LeaderboardEntry{}
		return lb
	}

	ordered := make([]domain.WindowTotal, len(totals))
	copy(ordered, totals)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Points != ordered[j].Points {
			return ordered[i].Points > ordered[j].Points
		}
		if !ordered[i].FirstEarnedAt.Equal(ordered[j].FirstEarnedAt) {
			return ordered[i].FirstEarnedAt.Before(ordered[j].FirstEarnedAt)
		}
		return ordered[i].UserID < ordered[j].UserID
	})

	if topN <= 0 || (cfg.MaxEntries > 0 && topN > cfg.MaxEntries) {
		topN = cfg.MaxEntries
	}

	entries := make([]domain.LeaderboardEntry, 0, len(ordered))
	for i, total := range ordered {
		entry := domain.LeaderboardEntry{
			Rank:   i + 1,
			UserID: total.UserID,
			Score:  total.Points,
			Window: window,
		}
		switch {
		case cfg.AnonymousMode:
			// Positional labels are stable within one projection: rank N is
			// always "Player N", so two users can never share a label.
			label := fmt.Sprintf("Player %d", i+1)
			entry.UserID = label
			entry.DisplayName = label
		case cfg.ShowRealNames && total.DisplayName != "":
			entry.DisplayName = total.DisplayName
		default:
			entry.DisplayName = total.Handle
		}
		entries = append(entries, entry)
	}

	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	lb.Entries = entries
	return lb
}
