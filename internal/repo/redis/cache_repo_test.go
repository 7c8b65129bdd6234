package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

type cachedThing struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (*CacheRepo, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCacheRepo(client, nil), mr
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "tier:usage:42", cachedThing{Name: "tables", Count: 7}, time.Minute)

	var got cachedThing
	if !cache.Get(ctx, "tier:usage:42", &got) {
		t.Fatalf("expected cache hit")
	}
	if got.Name != "tables" || got.Count != 7 {
		t.Fatalf("unexpected cached value: %+v", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "tier:usage:42", cachedThing{Count: 1}, time.Minute)
	mr.FastForward(61 * time.Second)

	var got cachedThing
	if cache.Get(ctx, "tier:usage:42", &got) {
		t.Fatalf("expected miss after ttl expiry")
	}
}

func TestCacheInvalidatePatternIsNamespaced(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "tier:usage:1", cachedThing{Count: 1}, time.Minute)
	cache.Set(ctx, "tier:usage:2", cachedThing{Count: 2}, time.Minute)
	cache.Set(ctx, "report:1:daily", cachedThing{Count: 3}, time.Minute)

	cache.InvalidatePattern(ctx, "tier:usage:*")

	var got cachedThing
	if cache.Get(ctx, "tier:usage:1", &got) || cache.Get(ctx, "tier:usage:2", &got) {
		t.Fatalf("expected tier usage keys to be invalidated")
	}
	if !cache.Get(ctx, "report:1:daily", &got) {
		t.Fatalf("report namespace must survive tier usage invalidation")
	}
}

func TestCacheCorruptEntryIsDroppedAsMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := mr.Set("tier:usage:9", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	var got cachedThing
	if cache.Get(ctx, "tier:usage:9", &got) {
		t.Fatalf("corrupt entry must read as miss")
	}
	if mr.Exists("tier:usage:9") {
		t.Fatalf("corrupt entry must be dropped")
	}
}

func TestCacheNilClientNeverFails(t *testing.T) {
	cache := NewCacheRepo(nil, nil)
	ctx := context.Background()

	if cache.IsAvailable(ctx) {
		t.Fatalf("nil client must report unavailable")
	}

	cache.Set(ctx, "k", cachedThing{}, time.Minute)
	cache.Del(ctx, "k")
	cache.InvalidatePattern(ctx, "k*")

	var got cachedThing
	if cache.Get(ctx, "k", &got) {
		t.Fatalf("nil client must always miss")
	}
}

func TestCacheDownedServerReadsAsMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "k", cachedThing{Count: 5}, time.Minute)
	mr.Close()

	var got cachedThing
	if cache.Get(ctx, "k", &got) {
		t.Fatalf("downed server must read as miss")
	}
	if cache.IsAvailable(ctx) {
		t.Fatalf("downed server must report unavailable")
	}
}
