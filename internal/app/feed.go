package app

import (
	"sync"

	"wildlife-rewards-service/internal/domain"
)

// leaderboardFeed fans fresh projections out to live subscribers. Slow
// consumers get their stale frame dropped instead of blocking the
// completion path.
type leaderboardFeed struct {
	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

func newLeaderboardFeed() *leaderboardFeed {
	return &leaderboardFeed{
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// subscribe registers a live consumer. Only frames broadcast after this
// call are delivered; the current projection is the caller's to fetch, so
// a client never sees a duplicate initial frame.
func (f *leaderboardFeed) subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *leaderboardFeed) broadcast(lb domain.Leaderboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
