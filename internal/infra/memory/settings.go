package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"wildlife-rewards-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// SettingsLoader fetches the reward configuration from a backing store
// (admin-editable settings tables, for instance).
type SettingsLoader interface {
	LoadConfig(ctx context.Context) (domain.RewardConfig, error)
}

// SettingsCache caches the configuration snapshot with TTL to avoid
// re-reading the settings store on every completion.
type SettingsCache struct {
	loader SettingsLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    domain.RewardConfig
	expiresAt time.Time
}

func NewSettingsCache(loader SettingsLoader, ttl time.Duration) *SettingsCache {
	return &SettingsCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *SettingsCache) GetConfig(ctx context.Context) (domain.RewardConfig, error) {
	now := c.clock()

	c.mu.RLock()
	if c.expiresAt.After(now) {
		cfg := c.cached
		c.mu.RUnlock()
		return cfg, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("config", func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if c.expiresAt.After(now) {
			cfg := c.cached
			c.mu.RUnlock()
			return cfg, nil
		}
		c.mu.RUnlock()

		cfg, err := c.loader.LoadConfig(ctx)
		if err != nil {
			return domain.RewardConfig{}, err
		}

		c.mu.Lock()
		c.cached = cfg
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return domain.RewardConfig{}, err
	}
	return result.(domain.RewardConfig), nil
}

func (c *SettingsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticSettingsLoader serves a fixed snapshot (tests, redis-less demos).
type StaticSettingsLoader struct {
	mu  sync.RWMutex
	cfg domain.RewardConfig
}

func NewStaticSettingsLoader(cfg domain.RewardConfig) *StaticSettingsLoader {
	return &StaticSettingsLoader{cfg: cfg}
}

func (l *StaticSettingsLoader) LoadConfig(_ context.Context) (domain.RewardConfig, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg, nil
}

// GetConfig lets the loader double as an app.SettingsRepository directly.
func (l *StaticSettingsLoader) GetConfig(ctx context.Context) (domain.RewardConfig, error) {
	return l.LoadConfig(ctx)
}

// Update swaps the snapshot, mimicking an admin settings edit.
func (l *StaticSettingsLoader) Update(cfg domain.RewardConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}
