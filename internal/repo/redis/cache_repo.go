package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultCacheTTL = 300 * time.Second

// CacheRepo is a degrade-safe key/value cache. Every failure (nil client,
// connection error, serialization error) is logged and reported as a miss;
// no method returns an error or panics. Callers must treat a miss and a
// failure identically and recompute from the source of truth.
type CacheRepo struct {
	client *goredis.Client
	log    *zap.Logger
}

func NewCacheRepo(client *goredis.Client, log *zap.Logger) *CacheRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &CacheRepo{client: client, log: log}
}

func (r *CacheRepo) IsAvailable(ctx context.Context) bool {
	if r.client == nil {
		return false
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.log.Warn("cache ping failed", zap.Error(err))
		return false
	}
	return true
}

// Get unmarshals the cached value into target and reports whether it hit.
func (r *CacheRepo) Get(ctx context.Context, key string, target any) bool {
	if r.client == nil || key == "" || target == nil {
		return false
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			r.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(raw, target); err != nil {
		r.log.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		r.Del(ctx, key)
		return false
	}

	return true
}

func (r *CacheRepo) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if r.client == nil || key == "" {
		return
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	raw, err := json.Marshal(value)
	if err != nil {
		r.log.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}

	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		r.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *CacheRepo) Del(ctx context.Context, keys ...string) {
	if r.client == nil || len(keys) == 0 {
		return
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// InvalidatePattern removes every key matching the glob pattern using SCAN,
// so one concern's invalidation cannot touch another namespace.
func (r *CacheRepo) InvalidatePattern(ctx context.Context, pattern string) {
	if r.client == nil || pattern == "" {
		return
	}

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			r.Del(ctx, keys...)
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		r.log.Warn("cache pattern scan failed", zap.String("pattern", pattern), zap.Error(err))
		return
	}
	if len(keys) > 0 {
		r.Del(ctx, keys...)
	}
}
