// Package cache holds the Redis-backed state shared between the agent and
// the history API: live job progress, rate-limit windows and short-lived
// response blobs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/portalpilot/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is everything the history API server needs from Redis.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)
	ProgressCache
}

// ProgressCache holds the latest poll snapshot of live portal jobs.
type ProgressCache interface {
	SetJobProgress(ctx context.Context, progress *models.JobProgress, ttl time.Duration) error
	GetJobProgress(ctx context.Context, jobID string) (*models.JobProgress, bool, error)
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache parses a redis:// or rediss:// URL. No connection is made
// until the first command.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get reports found=false, with no error, for a missing or expired key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// SetJobProgress stores the snapshot as JSON under JobProgressKey.
func (c *RedisCache) SetJobProgress(ctx context.Context, progress *models.JobProgress, ttl time.Duration) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal job progress: %w", err)
	}
	return c.Set(ctx, JobProgressKey(progress.JobID), data, ttl)
}

func (c *RedisCache) GetJobProgress(ctx context.Context, jobID string) (*models.JobProgress, bool, error) {
	data, found, err := c.Get(ctx, JobProgressKey(jobID))
	if err != nil || !found {
		return nil, false, err
	}
	var p models.JobProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("unmarshal job progress %s: %w", jobID, err)
	}
	return &p, true, nil
}

// IncrWithExpiry increments a fixed-window counter. The expiry is only set
// when the window opens, so later hits do not extend it.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

var _ Cache = (*RedisCache)(nil)
