// Package scorecache provides the optional short-window cache for computed
// constructiveness scores. Scores must never outlive a short TTL because
// response counts and persona context shift ranking; both backends enforce
// the TTL strictly and fall back to recomputation on any cache failure.
package scorecache

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"asocial/api_feed/pkg/cache"
	"asocial/api_feed/pkg/models"
)

// DefaultTTL is the default score retention window.
const DefaultTTL = 30 * time.Second

// Cache retrieves a cached score or computes and stores a fresh one.
type Cache interface {
	GetOrCompute(ctx context.Context, key string, compute func() models.Score) models.Score
}

// Memory is an in-process score cache built on the shared TTL cache.
type Memory struct {
	inner *cache.Cache
}

// NewMemory creates an in-process score cache with the given TTL.
func NewMemory(ttl time.Duration, hooks cache.MetricsHooks) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		inner: cache.New(cache.Options{TTL: ttl, MaxEntries: 16384}, hooks),
	}
}

// GetOrCompute returns the cached score for key, computing and storing it on
// a miss. Concurrent misses for the same key compute once.
func (m *Memory) GetOrCompute(ctx context.Context, key string, compute func() models.Score) models.Score {
	value, ok, err := m.inner.Get(ctx, key, func(context.Context, string) (interface{}, bool, error) {
		return compute(), true, nil
	})
	if err != nil || !ok {
		return compute()
	}
	score, ok := value.(models.Score)
	if !ok {
		return compute()
	}
	return score
}

// Redis is a score cache shared across service replicas. Entries expire
// server-side via SET EX, so a replica can never read a score older than the
// window.
type Redis struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewRedis creates a Redis-backed score cache with the given TTL.
func NewRedis(client goredis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// GetOrCompute returns the cached score for key, computing and storing it on
// a miss. Redis errors are treated as misses.
func (r *Redis) GetOrCompute(ctx context.Context, key string, compute func() models.Score) models.Score {
	raw, err := r.client.Get(ctx, "feed:score:"+key).Bytes()
	if err == nil {
		var score models.Score
		if err := json.Unmarshal(raw, &score); err == nil {
			return score
		}
	}

	score := compute()
	if encoded, err := json.Marshal(score); err == nil {
		r.client.Set(ctx, "feed:score:"+key, encoded, r.ttl)
	}
	return score
}
