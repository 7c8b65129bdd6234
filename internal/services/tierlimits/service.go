// Package tierlimits decides what a store's tier entitles it to. Limit
// checks are read-then-decide, not atomic reservations: two concurrent
// checks can both pass at the boundary and leave the store slightly over
// quota. That soft-limit behaviour is deliberate; the snapshot cache is
// never written through, so every miss re-derives truth from live counts.
package tierlimits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/restodesk/backend/internal/domain/enums"
	"github.com/restodesk/backend/internal/domain/rules"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrUnknownResource    = errors.New("unknown resource")
	ErrUnknownFeature     = errors.New("unknown feature")
	ErrLimitCheckInternal = errors.New("limit check failed internally")
)

type Resource string

const (
	ResourceTables        Resource = "tables"
	ResourceMenuItems     Resource = "menuItems"
	ResourceStaff         Resource = "staff"
	ResourceMonthlyOrders Resource = "monthlyOrders"
)

const (
	FeatureKDS             = "kds"
	FeatureLoyalty         = "loyalty"
	FeatureAdvancedReports = "advancedReports"
)

type UsageStore interface {
	CountTables(ctx context.Context, storeID int64) (int, error)
	CountMenuItems(ctx context.Context, storeID int64) (int, error)
	CountStaff(ctx context.Context, storeID int64) (int, error)
	CountOrdersSince(ctx context.Context, storeID int64, since time.Time) (int, error)
}

type TierProvider interface {
	GetTierForStore(ctx context.Context, storeID int64) (enums.Tier, error)
}

type Cache interface {
	Get(ctx context.Context, key string, target any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Del(ctx context.Context, keys ...string)
}

type ResourceUsage struct {
	Current int `json:"current"`
	Limit   int `json:"limit"`
}

type Snapshot struct {
	StoreID       int64              `json:"store_id"`
	Tier          enums.Tier         `json:"tier"`
	Tables        ResourceUsage      `json:"tables"`
	MenuItems     ResourceUsage      `json:"menu_items"`
	Staff         ResourceUsage      `json:"staff"`
	MonthlyOrders ResourceUsage      `json:"monthly_orders"`
	Features      rules.TierFeatures `json:"features"`
	ComputedAt    time.Time          `json:"computed_at"`
}

// CheckResult is a value, not an error: a denied check is a normal outcome.
type CheckResult struct {
	Allowed      bool
	Resource     Resource
	CurrentUsage int
	Limit        int
	Tier         enums.Tier
}

type Config struct {
	CacheTTL time.Duration
	// FailOpen allows access when the check itself errors: an availability
	// over enforcement tradeoff, so a billing-subsystem outage cannot take
	// every tenant operation down with it.
	FailOpen bool
}

type Dependencies struct {
	Usage UsageStore
	Tiers TierProvider
	Cache Cache
}

// Observer receives limit-check verdicts and cache outcomes for
// instrumentation. Optional.
type Observer interface {
	ObserveLimitCheck(resource string, allowed bool)
	ObserveUsageCache(hit bool)
}

type Service struct {
	usage    UsageStore
	tiers    TierProvider
	cache    Cache
	observer Observer
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

func NewService(deps Dependencies, cfg Config, log *zap.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 300 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		usage: deps.Usage,
		tiers: deps.Tiers,
		cache: deps.Cache,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

func (s *Service) AttachObserver(obs Observer) {
	s.observer = obs
}

func usageCacheKey(storeID int64) string {
	return fmt.Sprintf("tier:usage:%d", storeID)
}

// GetUsage returns the store's usage snapshot: cache first, then a parallel
// recount of every quota dimension from the source of truth.
func (s *Service) GetUsage(ctx context.Context, storeID int64) (Snapshot, error) {
	if storeID <= 0 {
		return Snapshot{}, ErrValidation
	}
	if s.usage == nil || s.tiers == nil {
		return Snapshot{}, fmt.Errorf("tier limit dependencies are not configured")
	}

	key := usageCacheKey(storeID)
	if s.cache != nil {
		var cached Snapshot
		if s.cache.Get(ctx, key, &cached) && cached.StoreID == storeID {
			if s.observer != nil {
				s.observer.ObserveUsageCache(true)
			}
			return cached, nil
		}
	}
	if s.observer != nil {
		s.observer.ObserveUsageCache(false)
	}

	snapshot, err := s.computeUsage(ctx, storeID)
	if err != nil {
		return Snapshot{}, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, snapshot, s.cfg.CacheTTL)
	}

	return snapshot, nil
}

func (s *Service) computeUsage(ctx context.Context, storeID int64) (Snapshot, error) {
	tier, err := s.tiers.GetTierForStore(ctx, storeID)
	if err != nil {
		return Snapshot{}, err
	}

	now := s.now().UTC()
	monthStart := rules.MonthStart(now, time.UTC)

	var tables, menuItems, staff, monthlyOrders int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tables, err = s.usage.CountTables(gctx, storeID)
		return err
	})
	g.Go(func() error {
		var err error
		menuItems, err = s.usage.CountMenuItems(gctx, storeID)
		return err
	})
	g.Go(func() error {
		var err error
		staff, err = s.usage.CountStaff(gctx, storeID)
		return err
	})
	g.Go(func() error {
		var err error
		monthlyOrders, err = s.usage.CountOrdersSince(gctx, storeID, monthStart)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("count store usage: %w", err)
	}

	limits := rules.LimitsFor(tier)
	return Snapshot{
		StoreID:       storeID,
		Tier:          tier,
		Tables:        ResourceUsage{Current: tables, Limit: limits.MaxTables},
		MenuItems:     ResourceUsage{Current: menuItems, Limit: limits.MaxMenuItems},
		Staff:         ResourceUsage{Current: staff, Limit: limits.MaxStaff},
		MonthlyOrders: ResourceUsage{Current: monthlyOrders, Limit: limits.MaxMonthlyOrders},
		Features:      rules.FeaturesFor(tier),
		ComputedAt:    now,
	}, nil
}

// CheckLimit evaluates current + increment against the tier limit. With
// FailOpen set, an internal failure allows the action and logs the fault;
// otherwise it surfaces ErrLimitCheckInternal.
func (s *Service) CheckLimit(ctx context.Context, storeID int64, resource Resource, increment int) (CheckResult, error) {
	if storeID <= 0 {
		return CheckResult{}, ErrValidation
	}
	if increment <= 0 {
		increment = 1
	}

	snapshot, err := s.GetUsage(ctx, storeID)
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrUnknownResource) {
			return CheckResult{}, err
		}
		if s.cfg.FailOpen {
			s.log.Error("tier limit check failed, allowing by fail-open policy",
				zap.Int64("store_id", storeID),
				zap.String("resource", string(resource)),
				zap.Error(err))
			if s.observer != nil {
				s.observer.ObserveLimitCheck(string(resource), true)
			}
			return CheckResult{Allowed: true, Resource: resource}, nil
		}
		return CheckResult{}, fmt.Errorf("%w: %v", ErrLimitCheckInternal, err)
	}

	usage, err := snapshot.resource(resource)
	if err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{
		Allowed:      rules.WithinLimit(usage.Current, increment, usage.Limit),
		Resource:     resource,
		CurrentUsage: usage.Current,
		Limit:        usage.Limit,
		Tier:         snapshot.Tier,
	}
	if s.observer != nil {
		s.observer.ObserveLimitCheck(string(resource), result.Allowed)
	}
	return result, nil
}

func (s Snapshot) resource(resource Resource) (ResourceUsage, error) {
	switch resource {
	case ResourceTables:
		return s.Tables, nil
	case ResourceMenuItems:
		return s.MenuItems, nil
	case ResourceStaff:
		return s.Staff, nil
	case ResourceMonthlyOrders:
		return s.MonthlyOrders, nil
	default:
		return ResourceUsage{}, ErrUnknownResource
	}
}

// HasFeatureAccess is a pure function of the store's tier; no caching.
func (s *Service) HasFeatureAccess(ctx context.Context, storeID int64, feature string) (bool, error) {
	if storeID <= 0 {
		return false, ErrValidation
	}
	if s.tiers == nil {
		return false, fmt.Errorf("tier provider is nil")
	}

	tier, err := s.tiers.GetTierForStore(ctx, storeID)
	if err != nil {
		return false, err
	}

	features := rules.FeaturesFor(tier)
	switch strings.TrimSpace(feature) {
	case FeatureKDS:
		return features.KDS, nil
	case FeatureLoyalty:
		return features.Loyalty, nil
	case FeatureAdvancedReports:
		return features.AdvancedReports, nil
	default:
		return false, ErrUnknownFeature
	}
}

// Invalidate drops the cached snapshot so the next read recomputes. Cache
// failure is already swallowed by the cache layer; creation of the resource
// must never hinge on this call.
func (s *Service) Invalidate(ctx context.Context, storeID int64) {
	if s.cache == nil || storeID <= 0 {
		return
	}
	s.cache.Del(ctx, usageCacheKey(storeID))
}

// TrackUsage is called by every feature that creates or deletes a counted
// resource. The delta is advisory; the implementation invalidates rather
// than adjusting, keeping the snapshot derivation single-sourced.
func (s *Service) TrackUsage(ctx context.Context, storeID int64, resource Resource, delta int) {
	_ = resource
	_ = delta
	s.Invalidate(ctx, storeID)
}
