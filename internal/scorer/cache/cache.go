package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	pkgredis "github.com/corpuslab/corpus-analytics-platform/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "score:v1:"

// ScoreCache caches serialised scoring responses in Redis, keyed per corpus
// so a flush event can invalidate exactly the corpus that changed. Concurrent
// misses for the same key collapse into a single computation.
type ScoreCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *ScoreCache {
	return &ScoreCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "score-cache"),
	}
}

// Get returns the cached response for the given corpus and operation.
func (c *ScoreCache) Get(ctx context.Context, corpus, op string) ([]byte, bool) {
	key := c.buildKey(corpus, op)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			c.misses.Add(1)
			return nil, false
		}
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "corpus", corpus, "op", op, "key", key)
	return []byte(data), true
}

// Set stores a serialised response under the corpus and operation key.
func (c *ScoreCache) Set(ctx context.Context, corpus, op string, payload []byte) {
	key := c.buildKey(corpus, op)
	if err := c.client.Set(ctx, key, payload, c.cfg.CacheTTL.Duration); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for one scoring operation, or runs
// computeFn and caches its result on a miss. Concurrent misses for the same
// key share one computation. A nil cache degrades to calling computeFn.
// The second return reports whether the result came from cache.
func GetOrCompute[T any](
	c *ScoreCache,
	ctx context.Context,
	corpus, op string,
	computeFn func() (T, error),
) (T, bool, error) {
	var zero T
	if c == nil {
		result, err := computeFn()
		return result, false, err
	}

	if payload, ok := c.Get(ctx, corpus, op); ok {
		var result T
		if err := json.Unmarshal(payload, &result); err == nil {
			return result, true, nil
		}
		c.logger.Error("cache unmarshal failed", "corpus", corpus, "op", op)
	}

	key := c.buildKey(corpus, op)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if payload, ok := c.Get(ctx, corpus, op); ok {
			var result T
			if err := json.Unmarshal(payload, &result); err == nil {
				return result, nil
			}
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshaling cached response: %w", err)
		}
		c.Set(ctx, corpus, op, payload)
		return result, nil
	})
	if err != nil {
		return zero, false, err
	}
	return val.(T), false, nil
}

// InvalidateCorpus removes every cached response for one corpus.
func (c *ScoreCache) InvalidateCorpus(ctx context.Context, corpus string) error {
	pattern := keyPrefix + corpus + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating corpus %q cache: %w", corpus, err)
	}
	c.logger.Info("corpus cache invalidated", "corpus", corpus, "keys_deleted", deleted)
	return nil
}

// InvalidateAll removes every cached scoring response.
func (c *ScoreCache) InvalidateAll(ctx context.Context) error {
	pattern := keyPrefix + "*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ScoreCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ScoreCache) buildKey(corpus, op string) string {
	hash := sha256.Sum256([]byte(op))
	return fmt.Sprintf("%s%s:%x", keyPrefix, corpus, hash[:16])
}
