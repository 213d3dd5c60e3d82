package redis

import (
	"context"
	"encoding/json"
	"time"

	"wildlife-rewards-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// LeaderboardCache keeps recent projections in Redis so read-heavy
// leaderboard traffic does not re-scan the ledger. Entries are stored
// post-projection, so anything cached is already redacted.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Get(ctx context.Context, window domain.Window, activity domain.ActivityType) (domain.Leaderboard, bool) {
	raw, err := c.client.Get(ctx, c.key(window, activity)).Bytes()
	if err != nil {
		return domain.Leaderboard{}, false
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, false
	}
	return lb, true
}

func (c *LeaderboardCache) Set(ctx context.Context, lb domain.Leaderboard) {
	data, err := json.Marshal(lb)
	if err != nil {
		return
	}
	// best-effort; a failed cache write only costs the next reader a rescan
	_ = c.client.Set(ctx, c.key(lb.Window, lb.ActivityFilter), data, c.ttl).Err()
}

func (c *LeaderboardCache) key(window domain.Window, activity domain.ActivityType) string {
	key := "rewards:leaderboard:" + string(window)
	if activity != "" {
		key += ":" + string(activity)
	}
	return key
}
