package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/svtfetch/backend/internal/logger"
)

const keyEpisodesPrefix = "svtfetch:episodes:"

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New wraps a Redis client. Entries expire after ttl.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		log:    logger.Default().WithComponent("cache"),
	}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.log.Debug(ctx, "cache miss", map[string]interface{}{"key": key})
		return "", false
	}
	if err != nil {
		c.log.Warn(ctx, "cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return "", false
	}
	c.log.Debug(ctx, "cache hit", map[string]interface{}{"key": key})
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
		return err
	}
	return nil
}

// EpisodeLister is the probe being cached
type EpisodeLister func(ctx context.Context, url string) ([]string, error)

// Episodes returns the cached episode list for url, calling probe on a miss.
// Probe errors are never cached. A cache that cannot be reached only costs
// the probe.
func (c *Cache) Episodes(ctx context.Context, url string, probe EpisodeLister) ([]string, bool, error) {
	key := keyEpisodesPrefix + url

	if raw, ok := c.Get(ctx, key); ok {
		var episodes []string
		if err := json.Unmarshal([]byte(raw), &episodes); err == nil {
			return episodes, true, nil
		}
	}

	episodes, err := probe(ctx, url)
	if err != nil {
		return nil, false, err
	}

	data, err := json.Marshal(episodes)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode episodes: %w", err)
	}
	// errors are logged by Set
	_ = c.Set(ctx, key, string(data), c.ttl)

	return episodes, false, nil
}
