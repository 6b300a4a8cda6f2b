package classify

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/resilience"
	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "classify:"

// KV is the subset of the Redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache stores classification results in Redis behind a circuit breaker.
// Every failure degrades to a miss; callers then classify directly.
type Cache struct {
	kv      KV
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
}

func NewCache(kv KV, ttl time.Duration, breaker *resilience.CircuitBreaker) *Cache {
	return &Cache{
		kv:      kv,
		ttl:     ttl,
		breaker: breaker,
		logger:  slog.Default().With("component", "classify-cache"),
	}
}

// CacheKey scopes a token sequence to one model version, so results from a
// replaced model are never served.
func CacheKey(modelVersion string, tokens []string) string {
	hash := sha256.Sum256([]byte(strings.Join(tokens, " ")))
	return fmt.Sprintf("%s%s:%x", keyPrefix, modelVersion, hash[:16])
}

func (c *Cache) Get(ctx context.Context, key string) (*Result, bool) {
	var data string
	err := c.guard(func() error {
		v, err := c.kv.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		data = v
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == "" {
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *Cache) Set(ctx context.Context, key string, result *Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.guard(func() error { return c.kv.Set(ctx, key, data, c.ttl) }); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes and stores it.
// Concurrent misses for the same key share one computation.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func() (*Result, error)) (*Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Result), false, nil
}

// Invalidate drops every cached result.
func (c *Cache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.guard(func() error {
		var err error
		deleted, err = c.kv.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating classification cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Cache) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}
