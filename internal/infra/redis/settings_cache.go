package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"wildlife-rewards-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SettingsLoader fetches the reward configuration from a backing store
// (the admin-editable settings tables).
type SettingsLoader interface {
	LoadConfig(ctx context.Context) (domain.RewardConfig, error)
}

// SettingsCache caches the marshalled configuration snapshot in Redis and
// falls back to the loader on cache miss. One snapshot is shared by all
// instances; singleflight keeps a stampede of completions from hitting the
// settings store at once.
type SettingsCache struct {
	client *redis.Client
	loader SettingsLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewSettingsCache(client *redis.Client, loader SettingsLoader, ttl time.Duration) *SettingsCache {
	return &SettingsCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const settingsKey = "rewards:config"

func (c *SettingsCache) GetConfig(ctx context.Context) (domain.RewardConfig, error) {
	raw, err := c.client.Get(ctx, settingsKey).Bytes()
	if err == nil {
		var cfg domain.RewardConfig
		if err := json.Unmarshal(raw, &cfg); err == nil {
			return cfg, nil
		}
		// Corrupt cache entry: fall through and reload.
	}

	result, err, _ := c.sf.Do(settingsKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := c.client.Get(ctx, settingsKey).Bytes()
		if err == nil {
			var cfg domain.RewardConfig
			if err := json.Unmarshal(raw, &cfg); err == nil {
				return cfg, nil
			}
		}

		cfg, err := c.loader.LoadConfig(ctx)
		if err != nil {
			return domain.RewardConfig{}, err
		}

		if data, err := json.Marshal(cfg); err == nil {
			// best-effort write; a failed cache set never fails the read
			_ = c.client.Set(ctx, settingsKey, data, c.ttlWithJitter()).Err()
		}
		return cfg, nil
	})
	if err != nil {
		return domain.RewardConfig{}, err
	}
	return result.(domain.RewardConfig), nil
}

// Invalidate drops the cached snapshot, forcing a reload after an admin
// settings edit.
func (c *SettingsCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, settingsKey).Err()
}

func (c *SettingsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
