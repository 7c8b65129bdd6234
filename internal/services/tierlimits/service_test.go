package tierlimits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/restodesk/backend/internal/domain/enums"
	"github.com/restodesk/backend/internal/domain/rules"
	redisrepo "github.com/restodesk/backend/internal/repo/redis"
)

type stubUsageStore struct {
	tables    int
	menuItems int
	staff     int
	orders    int
	err       error
	countCall int
}

func (s *stubUsageStore) CountTables(context.Context, int64) (int, error) {
	s.countCall++
	return s.tables, s.err
}

func (s *stubUsageStore) CountMenuItems(context.Context, int64) (int, error) {
	return s.menuItems, s.err
}

func (s *stubUsageStore) CountStaff(context.Context, int64) (int, error) {
	return s.staff, s.err
}

func (s *stubUsageStore) CountOrdersSince(context.Context, int64, time.Time) (int, error) {
	return s.orders, s.err
}

type stubTierProvider struct {
	tier enums.Tier
	err  error
}

func (s *stubTierProvider) GetTierForStore(context.Context, int64) (enums.Tier, error) {
	return s.tier, s.err
}

func newCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisrepo.NewCacheRepo(client, zap.NewNop()), mr
}

func TestCheckLimitDeniesAtBoundary(t *testing.T) {
	usage := &stubUsageStore{tables: 20}
	svc := NewService(Dependencies{Usage: usage, Tiers: &stubTierProvider{tier: enums.TierFree}}, Config{}, zap.NewNop())

	res, err := svc.CheckLimit(context.Background(), 1, ResourceTables, 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed {
		t.Fatal("free tier at 20/20 tables must be denied")
	}
	if res.CurrentUsage != 20 || res.Limit != rules.LimitsFor(enums.TierFree).MaxTables {
		t.Fatalf("result = %+v", res)
	}
}

func TestCheckLimitAllowsBelowBoundary(t *testing.T) {
	usage := &stubUsageStore{tables: 19}
	svc := NewService(Dependencies{Usage: usage, Tiers: &stubTierProvider{tier: enums.TierFree}}, Config{}, zap.NewNop())

	res, err := svc.CheckLimit(context.Background(), 1, ResourceTables, 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatal("free tier at 19/20 tables must be allowed")
	}
}

func TestCheckLimitUnlimitedNeverBlocks(t *testing.T) {
	usage := &stubUsageStore{tables: 1_000_000}
	svc := NewService(Dependencies{Usage: usage, Tiers: &stubTierProvider{tier: enums.TierPremium}}, Config{}, zap.NewNop())

	res, err := svc.CheckLimit(context.Background(), 1, ResourceTables, 500)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatal("premium tables are unlimited and must never block")
	}
	if res.Limit != rules.Unlimited {
		t.Fatalf("limit = %d, want unlimited sentinel", res.Limit)
	}
}

func TestCheckLimitUnknownResource(t *testing.T) {
	svc := NewService(Dependencies{Usage: &stubUsageStore{}, Tiers: &stubTierProvider{tier: enums.TierFree}}, Config{}, zap.NewNop())

	if _, err := svc.CheckLimit(context.Background(), 1, Resource("widgets"), 1); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("expected ErrUnknownResource, got %v", err)
	}
}

func TestGetUsageServesFromCache(t *testing.T) {
	cache, _ := newCache(t)
	usage := &stubUsageStore{tables: 5}
	svc := NewService(Dependencies{Usage: usage, Tiers: &stubTierProvider{tier: enums.TierStandard}, Cache: cache}, Config{}, zap.NewNop())

	if _, err := svc.GetUsage(context.Background(), 1); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := svc.GetUsage(context.Background(), 1); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if usage.countCall != 1 {
		t.Fatalf("source counted %d times, cache should have served the second read", usage.countCall)
	}
}

func TestInvalidateTriggersRecompute(t *testing.T) {
	cache, _ := newCache(t)
	usage := &stubUsageStore{tables: 5}
	svc := NewService(Dependencies{Usage: usage, Tiers: &stubTierProvider{tier: enums.TierStandard}, Cache: cache}, Config{}, zap.NewNop())

	if _, err := svc.GetUsage(context.Background(), 1); err != nil {
		t.Fatalf("first read: %v", err)
	}
	svc.TrackUsage(context.Background(), 1, ResourceTables, 1)
	if _, err := svc.GetUsage(context.Background(), 1); err != nil {
		t.Fatalf("read after invalidate: %v", err)
	}
	if usage.countCall != 2 {
		t.Fatalf("source counted %d times, invalidation should force a recompute", usage.countCall)
	}
}

func TestCheckLimitIdenticalWithCacheDown(t *testing.T) {
	cache, mr := newCache(t)
	usage := &stubUsageStore{tables: 20}
	deps := Dependencies{Usage: usage, Tiers: &stubTierProvider{tier: enums.TierFree}, Cache: cache}
	svc := NewService(deps, Config{}, zap.NewNop())

	up, err := svc.CheckLimit(context.Background(), 1, ResourceTables, 1)
	if err != nil {
		t.Fatalf("check with cache up: %v", err)
	}

	mr.Close()

	down, err := svc.CheckLimit(context.Background(), 1, ResourceTables, 1)
	if err != nil {
		t.Fatalf("check with cache down must not error: %v", err)
	}
	if up != down {
		t.Fatalf("results diverged: up=%+v down=%+v", up, down)
	}
}

func TestCheckLimitFailOpen(t *testing.T) {
	boom := errors.New("database is down")
	usage := &stubUsageStore{err: boom}

	closed := NewService(Dependencies{Usage: usage, Tiers: &stubTierProvider{tier: enums.TierFree}}, Config{FailOpen: false}, zap.NewNop())
	if _, err := closed.CheckLimit(context.Background(), 1, ResourceTables, 1); !errors.Is(err, ErrLimitCheckInternal) {
		t.Fatalf("fail-closed check should wrap ErrLimitCheckInternal, got %v", err)
	}

	open := NewService(Dependencies{Usage: usage, Tiers: &stubTierProvider{tier: enums.TierFree}}, Config{FailOpen: true}, zap.NewNop())
	res, err := open.CheckLimit(context.Background(), 1, ResourceTables, 1)
	if err != nil {
		t.Fatalf("fail-open check must not error: %v", err)
	}
	if !res.Allowed {
		t.Fatal("fail-open check must allow the action")
	}
}

func TestHasFeatureAccess(t *testing.T) {
	svc := NewService(Dependencies{Usage: &stubUsageStore{}, Tiers: &stubTierProvider{tier: enums.TierFree}}, Config{}, zap.NewNop())

	ok, err := svc.HasFeatureAccess(context.Background(), 1, FeatureKDS)
	if err != nil {
		t.Fatalf("feature check: %v", err)
	}
	if ok {
		t.Fatal("free tier must not have kds access")
	}

	if _, err := svc.HasFeatureAccess(context.Background(), 1, "teleportation"); !errors.Is(err, ErrUnknownFeature) {
		t.Fatalf("expected ErrUnknownFeature, got %v", err)
	}
}
